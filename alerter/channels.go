package alerter

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ChannelCredentials carries every delivery credential as one explicit
// struct passed into the dispatcher constructor. There is no process-wide
// credential state: main resolves these from config/environment once.
type ChannelCredentials struct {
	// Mail transport.
	Host   string
	Port   int
	User   string
	Secret string

	// SMS/WhatsApp provider (Twilio).
	ProviderSID   string
	ProviderToken string
	SenderID      string
}

// Message is the channel-agnostic payload; email uses both fields, text
// channels only the body.
type Message struct {
	Subject string
	Body    string
}

// Channel is one delivery capability. Configured reports whether the channel
// has the credentials to attempt delivery at all; the dispatcher checks it
// before calling Send, so an unconfigured provider never costs a network
// call.
type Channel interface {
	Name() string
	Configured() bool
	Send(to ContactRecord, msg Message) error
}

// Channel names accepted in a dispatch plan.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "twilio"
	ChannelWhatsApp = "whatsapp"
	ChannelStub     = "stub"
)

// BuildChannel maps a plan entry to its implementation. Unknown names return
// ok=false; the dispatcher records them as failed outcomes instead of
// stopping the batch.
func BuildChannel(name string, creds ChannelCredentials) (Channel, bool) {
	switch name {
	case ChannelEmail:
		return &EmailChannel{creds: creds}, true
	case ChannelSMS:
		return newTwilioChannel(creds, false), true
	case ChannelWhatsApp:
		return newTwilioChannel(creds, true), true
	case ChannelStub:
		return &StubChannel{}, true
	default:
		return nil, false
	}
}

// EmailChannel delivers over authenticated SMTP.
type EmailChannel struct {
	creds ChannelCredentials
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Configured() bool {
	return c.creds.Host != "" && c.creds.Port > 0 && c.creds.User != "" && c.creds.Secret != ""
}

func (c *EmailChannel) Send(to ContactRecord, msg Message) error {
	if to.Email == "" {
		return fmt.Errorf("missing email address")
	}
	auth := smtp.PlainAuth("", c.creds.User, c.creds.Secret, c.creds.Host)
	addr := fmt.Sprintf("%s:%d", c.creds.Host, c.creds.Port)
	payload := []byte("From: Counseling Desk <" + c.creds.User + ">\r\n" +
		"To: " + to.Email + "\r\n" +
		"Subject: " + msg.Subject + "\r\n" +
		"\r\n" + msg.Body + "\r\n")
	return smtp.SendMail(addr, auth, c.creds.User, []string{to.Email}, payload)
}

// TwilioChannel delivers SMS or WhatsApp texts through the Twilio REST API.
// The client is created once per dispatcher, only when credentials exist.
type TwilioChannel struct {
	client   *twilio.RestClient
	from     string
	whatsapp bool
}

func newTwilioChannel(creds ChannelCredentials, whatsapp bool) *TwilioChannel {
	c := &TwilioChannel{from: creds.SenderID, whatsapp: whatsapp}
	if creds.ProviderSID != "" && creds.ProviderToken != "" {
		c.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: creds.ProviderSID,
			Password: creds.ProviderToken,
		})
	}
	return c
}

func (c *TwilioChannel) Name() string {
	if c.whatsapp {
		return ChannelWhatsApp
	}
	return ChannelSMS
}

func (c *TwilioChannel) Configured() bool {
	return c.client != nil && c.from != ""
}

func (c *TwilioChannel) Send(to ContactRecord, msg Message) error {
	if to.Phone == "" {
		return fmt.Errorf("missing phone number")
	}
	from, dest := c.from, to.Phone
	if c.whatsapp {
		from = "whatsapp:" + from
		dest = "whatsapp:" + dest
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(dest)
	params.SetBody(msg.Body)
	_, err := c.client.Api.CreateMessage(params)
	return err
}

// StubChannel always succeeds and logs the outbound text instead of calling
// a provider. It exists so the pipeline can be exercised end to end without
// live credentials.
type StubChannel struct{}

func (c *StubChannel) Name() string     { return ChannelStub }
func (c *StubChannel) Configured() bool { return true }

func (c *StubChannel) Send(to ContactRecord, msg Message) error {
	dest := to.Phone
	if dest == "" {
		dest = to.Email
	}
	body := msg.Body
	if len(body) > 120 {
		body = body[:120] + "..."
	}
	log.Printf("[stub -> %s] %s", dest, body)
	return nil
}
