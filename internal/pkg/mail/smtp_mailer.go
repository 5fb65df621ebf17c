package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/campushq/campusbill/internal/pkg/env"
)

// SendMail sends an email via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("billing@%s", env.GetEnv("APP_DOMAIN", "localhost"))
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendBillingNotice wraps a dunning or renewal notice in the standard billing
// email shell before sending it.
func SendBillingNotice(to string, subject string, body string) error {
	appName := env.GetEnv("APP_NAME", "CampusBill")
	html := fmt.Sprintf(
		"<html><body>%s<p>— The %s billing team</p></body></html>",
		body, appName,
	)
	return SendMail(to, subject, html)
}
