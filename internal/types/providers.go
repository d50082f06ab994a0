package types

// SenderIdentity is the From identity attached to outbound email.
type SenderIdentity struct {
	Address string
	Name    string
}

// SendInput carries a fully rendered email to an EmailProvider. Rendering
// happens before this point; providers only transmit.
type SendInput struct {
	To          string
	From        SenderIdentity
	Subject     string
	BodyHTML    string
	BodyText    string
	ReferenceID string
}

// PushInput carries a rendered push notification to a PushProvider.
type PushInput struct {
	Token       string
	Title       string
	Body        string
	Data        map[string]string
	ReferenceID string
}
