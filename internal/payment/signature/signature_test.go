package signature

import (
	"testing"

	"github.com/stretchr/testify/require"

	"examreg/pkg/derrors"
)

func TestVerifyCallback(t *testing.T) {
	const secret = "test-key-secret"

	sig := Sign("order_1", "pay_1", secret)
	require.NoError(t, VerifyCallback("order_1", "pay_1", sig, secret))

	t.Run("tampered signature", func(t *testing.T) {
		err := VerifyCallback("order_1", "pay_1", sig+"00", secret)
		require.Error(t, err)
		require.True(t, derrors.HasCode(err, derrors.CodeInvalidSignature))
	})

	t.Run("signature for different payment", func(t *testing.T) {
		err := VerifyCallback("order_1", "pay_2", sig, secret)
		require.Error(t, err)
		require.True(t, derrors.HasCode(err, derrors.CodeInvalidSignature))
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := VerifyCallback("order_1", "pay_1", sig, "other-secret")
		require.Error(t, err)
	})
}

func TestVerifyWebhook(t *testing.T) {
	const secret = "test-webhook-secret"
	body := []byte(`{"event":"payment.captured"}`)

	sig := SignWebhook(body, secret)
	require.NoError(t, VerifyWebhook(body, sig, secret))

	t.Run("modified body", func(t *testing.T) {
		err := VerifyWebhook([]byte(`{"event":"payment.captured" }`), sig, secret)
		require.Error(t, err)
		require.True(t, derrors.HasCode(err, derrors.CodeInvalidSignature))
	})

	t.Run("missing signature", func(t *testing.T) {
		err := VerifyWebhook(body, "", secret)
		require.Error(t, err)
		require.True(t, derrors.HasCode(err, derrors.CodeInvalidSignature))
	})
}
