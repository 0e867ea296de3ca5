package mailer

import "fmt"

// VerificationMessage builds the email-verification mail. link carries the
// token in its fragment.
func VerificationMessage(to, firstName, link string) Message {
	return Message{
		To:      to,
		Subject: "Verify your email address",
		Text: fmt.Sprintf("Hi %s,\n\nPlease verify your email address by opening the link below:\n\n%s\n\nIf you did not create this account, you can ignore this message.\n",
			greetingName(firstName), link),
	}
}

// PasswordResetMessage builds the reset mail.
func PasswordResetMessage(to, firstName, link string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Text: fmt.Sprintf("Hi %s,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\nIf you did not request this, you can ignore this message and your password will stay unchanged.\n",
			greetingName(firstName), link),
	}
}

// WelcomeMessage builds the post-registration mail.
func WelcomeMessage(to, firstName string) Message {
	return Message{
		To:      to,
		Subject: "Welcome aboard",
		Text: fmt.Sprintf("Hi %s,\n\nYour account is ready. We're glad to have you.\n",
			greetingName(firstName)),
	}
}

func greetingName(firstName string) string {
	if firstName == "" {
		return "there"
	}
	return firstName
}
