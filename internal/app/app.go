package app

import (
	"log"
	"os"
	"time"
)

type Config struct {
	Addr            string
	DatabaseURL     string
	SecretKey       string
	AdminEmail      string
	SessionLifetime time.Duration

	SMTPAddr          string
	SMTPUsername      string
	SMTPPassword      string
	MailSender        string
	MailSubjectPrefix string
}

func LoadConfig() Config {
	addr := getenv("ADDR", ":8080")
	dbURL := getenv("DATABASE_URL", "./zhihu.db")
	lifeHours := getenv("SESSION_LIFETIME_HOURS", "24")
	dur, err := time.ParseDuration(lifeHours + "h")
	if err != nil {
		dur = 24 * time.Hour
	}
	return Config{
		Addr:            addr,
		DatabaseURL:     dbURL,
		SecretKey:       getenv("SECRET_KEY", "this is hard to guess.."),
		AdminEmail:      os.Getenv("ADMIN_EMAIL"),
		SessionLifetime: dur,

		SMTPAddr:          getenv("SMTP_ADDR", "smtp.163.com:25"),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		MailSender:        getenv("MAIL_SENDER", "Zhihu Admin <admin@example.com>"),
		MailSubjectPrefix: getenv("MAIL_SUBJECT_PREFIX", "[Zhihu]"),
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
