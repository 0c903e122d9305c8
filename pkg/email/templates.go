package email

import (
	"fmt"
	"html"
)

// ReminderEmailData contains the data needed for the queue reminder email.
type ReminderEmailData struct {
	PatientName string
	Email       string
	Number      string
	ServiceName string
	DoctorName  string
	Date        string
	Time        string
	AppName     string
}

// BuildReminderEmail creates the email telling a patient when to arrive.
func BuildReminderEmail(data ReminderEmailData) Message {
	appName := data.AppName
	if appName == "" {
		appName = "Clinic"
	}

	name := data.PatientName
	if name == "" {
		name = "there"
	}

	with := ""
	if data.DoctorName != "" {
		with = " with " + data.DoctorName
	}

	subject := fmt.Sprintf("Your ticket %s at %s", data.Number, appName)

	textBody := fmt.Sprintf(`Hi %s,

Your ticket number for %s%s is %s.

Date: %s
Estimated call time: %s

Please arrive a few minutes early. The estimate may move if the queue runs late.

Thanks,
The %s Team`,
		name, data.ServiceName, with, data.Number, data.Date, data.Time, appName)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2563eb;">Hi %s,</h2>
    <p>Your ticket for <strong>%s</strong>%s:</p>
    <p style="text-align: center; margin: 30px 0; font-size: 36px; font-family: monospace; letter-spacing: 4px;">%s</p>
    <p>Date: <strong>%s</strong><br>Estimated call time: <strong>%s</strong></p>
    <p style="color: #6b7280; font-size: 14px;"><em>Please arrive a few minutes early. The estimate may move if the queue runs late.</em></p>
    <p style="color: #6b7280; font-size: 14px; margin-top: 30px;">Thanks,<br>The %s Team</p>
</body>
</html>`,
		html.EscapeString(name), html.EscapeString(data.ServiceName), html.EscapeString(with),
		html.EscapeString(data.Number), data.Date, data.Time, html.EscapeString(appName))

	return Message{
		To:       []string{data.Email},
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	}
}
