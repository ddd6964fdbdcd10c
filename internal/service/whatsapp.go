package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/entrega-local/api/internal/enum"
	"github.com/entrega-local/api/internal/store"
)

// ConfirmationMessage renders the order-confirmation text the customer sends
// to the restaurant over WhatsApp.
func ConfirmationMessage(o store.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Novo Pedido: #%s*\n\n", o.ID)
	fmt.Fprintf(&b, "*Cliente:* %s\n", o.CustomerName)

	fmt.Fprintf(&b, "*Endereço:* %s, %s", o.Address, o.AddressNumber)
	if o.CEP != "" {
		fmt.Fprintf(&b, " - CEP: %s", o.CEP)
	}
	if o.ReferencePoint != "" {
		fmt.Fprintf(&b, " (%s)", o.ReferencePoint)
	}
	b.WriteString("\n\n*Itens:*\n")

	for _, item := range o.Items {
		fmt.Fprintf(&b, "- %dx %s\n", item.Quantity, item.Name)
	}

	fmt.Fprintf(&b, "\n*Total: R$ %s*\n", o.Total.StringFixed(2))
	fmt.Fprintf(&b, "*Pagamento:* %s\n", paymentMethodPT(o.PaymentMethod))

	if o.PaymentMethod == enum.PaymentMethodCash && o.ChangeFor.Valid {
		troco := o.ChangeFor.Decimal.Sub(o.Total)
		fmt.Fprintf(&b, "*Troco para:* R$ %s (Levar R$ %s)\n",
			o.ChangeFor.Decimal.StringFixed(2), troco.StringFixed(2))
	}

	b.WriteString("\nAguardo confirmação!")
	return b.String()
}

// WhatsAppLink builds the wa.me deep link that opens the chat with the
// message prefilled.
func WhatsAppLink(number string, message string) string {
	return "https://wa.me/" + number + "?text=" + url.QueryEscape(message)
}

func paymentMethodPT(pm enum.PaymentMethod) string {
	switch pm {
	case enum.PaymentMethodPix:
		return "Pix (Pago)"
	case enum.PaymentMethodCash:
		return "Dinheiro"
	case enum.PaymentMethodCredit:
		return "Cartão de Crédito"
	case enum.PaymentMethodDebit:
		return "Cartão de Débito"
	}
	return string(pm)
}
