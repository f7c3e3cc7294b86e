package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"bulk-mailer/internal/models"
)

func newGmailTestServer(t *testing.T, handler http.HandlerFunc) *GmailTransport {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gmail-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	apiSrv := httptest.NewServer(handler)
	t.Cleanup(apiSrv.Close)

	conf := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenSrv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	transport, err := newGmailTransport(conf, "refresh-1", apiSrv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func TestGmailTransport_Send(t *testing.T) {
	t.Parallel()

	var raw []byte
	transport := newGmailTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)
		require.Equal(t, "Bearer gmail-token", r.Header.Get("Authorization"))

		var req gmailSendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		decoded, err := base64.URLEncoding.DecodeString(req.Raw)
		require.NoError(t, err)
		raw = decoded

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"18c0ffee","threadId":"18c0ffee"}`))
	})

	path := writeAttachment(t, "Jane_Doe.pdf", []byte("%PDF-1.4 fake"))
	id, err := transport.Send(context.Background(), &models.OutgoingMail{
		From:           "alice@gmail.com",
		To:             "jane@example.com",
		ToName:         "Jane Doe",
		Subject:        "Your Document - Jane Doe",
		Body:           "Dear Jane Doe,",
		AttachmentPath: path,
	})
	require.NoError(t, err)
	require.Equal(t, "18c0ffee", id)

	mr, err := mail.CreateReader(strings.NewReader(string(raw)))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	require.Equal(t, "Your Document - Jane Doe", subject)
	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", to[0].Address)

	var filename string
	var content []byte
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if h, ok := part.Header.(*mail.AttachmentHeader); ok {
			filename, _ = h.Filename()
			content, err = io.ReadAll(part.Body)
			require.NoError(t, err)
		}
	}
	require.Equal(t, "Jane_Doe.pdf", filename)
	require.Equal(t, "%PDF-1.4 fake", string(content))
}

func TestGmailTransport_SendError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "json error body",
			body: `{"error":{"code":429,"message":"User-rate limit exceeded","status":"RESOURCE_EXHAUSTED"}}`,
			want: "Gmail API error (429 RESOURCE_EXHAUSTED): User-rate limit exceeded",
		},
		{
			name: "plain body",
			body: "upstream unavailable",
			want: "status 429: upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := newGmailTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(tt.body))
			})

			path := writeAttachment(t, "doc.pdf", []byte("x"))
			_, err := transport.Send(context.Background(), &models.OutgoingMail{
				From: "alice@gmail.com", To: "jane@example.com", Subject: "s", Body: "b", AttachmentPath: path,
			})
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestGmailTransport_MissingAttachment(t *testing.T) {
	t.Parallel()

	called := false
	transport := newGmailTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := transport.Send(context.Background(), &models.OutgoingMail{
		From: "alice@gmail.com", To: "jane@example.com", AttachmentPath: "/nonexistent/doc.pdf",
	})
	require.ErrorIs(t, err, ErrMissingAttachment)
	require.False(t, called)
}

func TestDialGmail_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := DialGmail(context.Background(), models.AccountCredential{Provider: models.ProviderGmail, ClientID: "c"})
	require.ErrorIs(t, err, ErrInvalidCredential)
}
