package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	ClinicTimezone     string
	MinContactDigits   int
	DoctorName         string
	ClinicName         string
	AvgConsultMinutes  int
	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		ClinicTimezone:     os.Getenv("CLINIC_TIMEZONE"),
		MinContactDigits:   readInt("MIN_CONTACT_DIGITS", 10),
		DoctorName:         readString("DOCTOR_NAME", "Dr. John Doe"),
		ClinicName:         readString("CLINIC_NAME", "Wellness Medical Center"),
		AvgConsultMinutes:  readInt("AVG_CONSULT_MINUTES", 15),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
	}
}

func readString(key, fallback string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	return raw
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
