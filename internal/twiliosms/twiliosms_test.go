package twiliosms

import (
	"context"
	"errors"
	"testing"
	"time"

	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestClient_SendSMS(t *testing.T) {
	fake := &fakeCreator{}
	c := &Client{api: fake, fromNumber: "+15550001111"}

	if err := c.SendSMS(context.Background(), "+15551234567", "Starting FEMA_IA."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.params == nil || fake.params.To == nil || *fake.params.To != "+15551234567" {
		t.Fatalf("unexpected To param: %+v", fake.params)
	}
	if *fake.params.From != "+15550001111" || *fake.params.Body != "Starting FEMA_IA." {
		t.Errorf("unexpected params: from=%q body=%q", *fake.params.From, *fake.params.Body)
	}
}

func TestClient_SendSMS_Error(t *testing.T) {
	c := &Client{api: &fakeCreator{err: errors.New("21211 invalid number")}, fromNumber: "+1"}
	if err := c.SendSMS(context.Background(), "bad", "hi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestClient_SendSMS_CanceledContext(t *testing.T) {
	fake := &fakeCreator{}
	c := &Client{api: fake, fromNumber: "+1"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.SendSMS(ctx, "+15551234567", "hi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fake.params != nil {
		t.Error("expected no Twilio call after cancellation")
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); !errors.Is(err, ErrMissingFromNumber) {
		t.Errorf("expected ErrMissingFromNumber, got %v", err)
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("+15550001111"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromNumber != "+15550001111" {
		t.Errorf("unexpected from number %q", c.fromNumber)
	}
}

func TestNewClient_EnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550002222")
	c, err := NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromNumber != "+15550002222" {
		t.Errorf("unexpected from number %q", c.fromNumber)
	}
}

func TestMockClient_SendSMS(t *testing.T) {
	mock := NewMockClient()
	if err := mock.SendSMS(context.Background(), "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 || msgs[0].Body != "Hello Test" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	mock.Err = errors.New("down")
	if err := mock.SendSMS(context.Background(), "12345", "again"); err == nil {
		t.Error("expected configured error")
	}
	if len(mock.Messages()) != 1 {
		t.Error("failed send should not be recorded")
	}
}

func TestNewClient_Timeout(t *testing.T) {
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("+15550001111"), WithTimeout(7*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.timeout != 7*time.Second {
		t.Errorf("timeout = %v, want 7s", c.timeout)
	}

	rest := newRestClient(Opts{AccountSID: "AC1", AuthToken: "tok", Timeout: 7 * time.Second})
	base, ok := rest.RequestHandler.Client.(*twilioclient.Client)
	if !ok {
		t.Fatalf("unexpected base client type %T", rest.RequestHandler.Client)
	}
	if base.HTTPClient == nil || base.HTTPClient.Timeout != 7*time.Second {
		t.Errorf("Twilio HTTP client is not bounded by the configured timeout")
	}
}
