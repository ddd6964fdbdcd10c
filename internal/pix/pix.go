// Package pix builds static Pix BR Code payloads (EMV QRCPS-MPM).
//
// The payload is a flat sequence of TLV fields: a 2-digit id, a 2-digit
// zero-padded length, then the literal value. Two fields carry nested TLV
// groups: merchant account information (id 26) and additional data (id 62).
// The whole string, including the trailing "6304" checksum header, is covered
// by a CRC-16/CCITT-FALSE appended as 4 uppercase hex digits.
package pix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Errors returned by Encode. Both indicate caller bugs: a malformed payment
// payload could misdirect funds, so Encode fails instead of guessing.
var (
	ErrEmptyKey      = errors.New("pix key is required")
	ErrKeyTooLong    = errors.New("pix key exceeds maximum length")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// EMV field ids, in the order they must appear in the payload.
const (
	idPayloadFormat    = "00"
	idMerchantAccount  = "26"
	idMerchantCategory = "52"
	idCurrency         = "53"
	idAmount           = "54"
	idCountryCode      = "58"
	idMerchantName     = "59"
	idMerchantCity     = "60"
	idAdditionalData   = "62"
	idCRC              = "63"

	// Sub-ids inside the nested groups.
	idAccountGUI = "00"
	idAccountKey = "01"
	idTxID       = "05"
)

const (
	pixGUI = "br.gov.bcb.pix"

	maxKeyLen  = 77 // field 26 holds the GUI sub-field plus the key in 99 bytes
	maxNameLen = 25
	maxCityLen = 15
	maxTxIDLen = 25

	// The additional-data reference may not be empty; "***" is the
	// conventional filler for static codes.
	emptyTxID = "***"
)

// Encode builds the copy-and-paste Pix payload for a static charge.
//
// holderName and city are truncated to the field limits and stripped of runes
// outside the printable ASCII range. txID keeps only alphanumeric characters;
// when nothing remains it falls back to the "***" placeholder. The result is
// deterministic for identical inputs and safe for concurrent use.
func Encode(key, holderName, city string, amount decimal.Decimal, txID string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if len(key) > maxKeyLen {
		return "", ErrKeyTooLong
	}
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}

	var b strings.Builder
	b.WriteString(field(idPayloadFormat, "01"))
	b.WriteString(field(idMerchantAccount, field(idAccountGUI, pixGUI)+field(idAccountKey, key)))
	b.WriteString(field(idMerchantCategory, "0000"))
	b.WriteString(field(idCurrency, "986")) // BRL
	b.WriteString(field(idAmount, amount.StringFixed(2)))
	b.WriteString(field(idCountryCode, "BR"))
	b.WriteString(field(idMerchantName, normalize(holderName, maxNameLen)))
	b.WriteString(field(idMerchantCity, normalize(city, maxCityLen)))
	b.WriteString(field(idAdditionalData, field(idTxID, sanitizeTxID(txID))))

	// The CRC covers everything up to and including its own id+length header.
	b.WriteString(idCRC + "04")
	payload := b.String()
	return payload + fmt.Sprintf("%04X", Checksum(payload)), nil
}

// field renders a single TLV field. Values are ASCII by construction, so the
// byte length is the character count.
func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// normalize strips runes outside the printable ASCII charset the text fields
// permit and truncates to max.
func normalize(s string, max int) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			continue
		}
		b.WriteByte(byte(r))
		if b.Len() == max {
			break
		}
	}
	return b.String()
}

// sanitizeTxID keeps only alphanumeric characters of the order reference.
func sanitizeTxID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteByte(byte(r))
		}
		if b.Len() == maxTxIDLen {
			break
		}
	}
	if b.Len() == 0 {
		return emptyTxID
	}
	return b.String()
}

// Checksum computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF, no
// reflection, no final XOR) over s.
func Checksum(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
