package constants

const (
	AppName      = "clinicq"
	ConfigName   = "config"
	ConfigFormat = "yaml"
	EnvPrefix    = "CLINICQ"
)

// NATS subjects.
const (
	SubjectReminderSend = "clinicq.reminder.send"
	QueueGroupReminder  = "clinicq-reminder-workers"
)
