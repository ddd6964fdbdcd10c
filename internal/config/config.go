package config

import "os"

type Config struct {
	Port        string
	DatabaseURL string // empty means in-memory store
	JWTSecret   string

	AdminPassword string

	// Static Pix receiving-account configuration.
	PixKey        string
	PixHolderName string
	PixCity       string
	PixBankName   string

	// Restaurant WhatsApp number for the order handoff link.
	WhatsAppNumber string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", "admin123"),
		PixKey:         getEnv("PIX_KEY", "pedidos@entregalocal.com.br"),
		PixHolderName:  getEnv("PIX_HOLDER_NAME", "Entrega Local"),
		PixCity:        getEnv("PIX_CITY", "SAO PAULO"),
		PixBankName:    getEnv("PIX_BANK_NAME", "Banco Digital"),
		WhatsAppNumber: getEnv("WHATSAPP_NUMBER", "5521995612947"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
