package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bulk-mailer/internal/models"
	"bulk-mailer/pkg/microsoft"
)

func newGraphTestServer(t *testing.T, handler http.HandlerFunc) (*GraphTransport, *httptest.Server) {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	apiSrv := httptest.NewServer(handler)
	t.Cleanup(apiSrv.Close)

	oauth := microsoft.NewOAuthServiceWithTokenURL("tenant", "client", "secret", tokenSrv.URL)
	transport, err := newGraphTransport(oauth, apiSrv.URL)
	require.NoError(t, err)
	return transport, apiSrv
}

func TestGraphTransport_Send(t *testing.T) {
	t.Parallel()

	var got GraphMailRequest
	transport, _ := newGraphTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1.0/users/sender@contoso.com/sendMail", r.URL.Path)
		require.Equal(t, "Bearer graph-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("request-id", "req-123")
		w.WriteHeader(http.StatusAccepted)
	})

	path := writeAttachment(t, "doc.pdf", []byte("pdf bytes"))
	id, err := transport.Send(context.Background(), &models.OutgoingMail{
		From:           "sender@contoso.com",
		To:             "jane@example.com",
		ToName:         "Jane",
		Subject:        "Hello",
		Body:           "Dear Jane,",
		AttachmentPath: path,
	})
	require.NoError(t, err)
	require.Equal(t, "req-123", id)

	require.Equal(t, "Hello", got.Message.Subject)
	require.Equal(t, "jane@example.com", got.Message.ToRecipients[0].EmailAddress.Address)
	require.Len(t, got.Message.Attachments, 1)
	require.Equal(t, "doc.pdf", got.Message.Attachments[0].Name)
	decoded, err := base64.StdEncoding.DecodeString(got.Message.Attachments[0].ContentBytes)
	require.NoError(t, err)
	require.Equal(t, "pdf bytes", string(decoded))
}

func TestGraphTransport_SendError(t *testing.T) {
	t.Parallel()

	transport, _ := newGraphTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"ErrorAccessDenied","message":"Access is denied."}}`))
	})

	path := writeAttachment(t, "doc.pdf", []byte("x"))
	_, err := transport.Send(context.Background(), &models.OutgoingMail{
		From: "sender@contoso.com", To: "jane@example.com", AttachmentPath: path,
	})
	require.ErrorContains(t, err, "ErrorAccessDenied")
}

func TestGraphTransport_MissingAttachment(t *testing.T) {
	t.Parallel()

	called := false
	transport, _ := newGraphTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := transport.Send(context.Background(), &models.OutgoingMail{
		From: "sender@contoso.com", To: "jane@example.com", AttachmentPath: "/nonexistent/doc.pdf",
	})
	require.ErrorIs(t, err, ErrMissingAttachment)
	require.False(t, called)
}

func TestDialGraph_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := DialGraph(context.Background(), models.AccountCredential{Provider: models.ProviderGraph, TenantID: "t"})
	require.ErrorIs(t, err, ErrInvalidCredential)
}
