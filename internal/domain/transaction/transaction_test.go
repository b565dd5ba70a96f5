package transaction

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("HappyPath", func(t *testing.T) {
		tx, err := New("user-1", 2500, "EUR", PaymentMethodCard, "key-1")
		require.NoError(t, err)
		require.NotNil(t, tx)

		assert.NotEqual(t, uuid.Nil, tx.ID)
		assert.Equal(t, "key-1", tx.IdempotencyKey)
		assert.Equal(t, "user-1", tx.UserID)
		assert.Equal(t, int64(2500), tx.Amount)
		assert.Equal(t, "EUR", tx.Currency)
		assert.Equal(t, PaymentMethodCard, tx.PaymentMethod)
		assert.Equal(t, StatusCreated, tx.Status)
		assert.Equal(t, 0, tx.RetryCount)
		assert.Equal(t, DefaultMaxRetries, tx.MaxRetries)
		assert.Nil(t, tx.GatewayResponse)
		assert.Equal(t, WebhookStatusPending, tx.WebhookStatus)
		assert.False(t, tx.CreatedAt.IsZero())
		assert.Equal(t, tx.CreatedAt, tx.UpdatedAt)
	})

	t.Run("DefaultsCurrency", func(t *testing.T) {
		tx, err := New("user-1", 100, "", PaymentMethodUPI, "key-2")
		require.NoError(t, err)
		assert.Equal(t, DefaultCurrency, tx.Currency)
	})

	t.Run("ValidationFailures", func(t *testing.T) {
		testCases := []struct {
			name        string
			userID      string
			amount      int64
			currency    string
			method      PaymentMethod
			key         string
			expectedErr error
		}{
			{"EmptyUserID", "", 100, "USD", PaymentMethodUPI, "k", ErrEmptyUserID},
			{"EmptyIdempotencyKey", "user-1", 100, "USD", PaymentMethodUPI, "", ErrEmptyIdempotencyKey},
			{"ZeroAmount", "user-1", 0, "USD", PaymentMethodUPI, "k", ErrInvalidAmount},
			{"NegativeAmount", "user-1", -50, "USD", PaymentMethodUPI, "k", ErrInvalidAmount},
			{"UnknownPaymentMethod", "user-1", 100, "USD", PaymentMethod("CASH"), "k", ErrInvalidPaymentMethod},
			{"ShortCurrency", "user-1", 100, "US", PaymentMethodUPI, "k", ErrInvalidCurrency},
			{"LongCurrency", "user-1", 100, "DOLLARS", PaymentMethodUPI, "k", ErrInvalidCurrency},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				tx, err := New(tc.userID, tc.amount, tc.currency, tc.method, tc.key)
				assert.Nil(t, tx)
				assert.ErrorIs(t, err, tc.expectedErr)
			})
		}
	})
}

func TestValidPaymentMethod(t *testing.T) {
	assert.True(t, ValidPaymentMethod(PaymentMethodUPI))
	assert.True(t, ValidPaymentMethod(PaymentMethodCard))
	assert.True(t, ValidPaymentMethod(PaymentMethodWallet))
	assert.False(t, ValidPaymentMethod(PaymentMethod("CASH")))
	assert.False(t, ValidPaymentMethod(PaymentMethod("")))
}

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{StatusCreated, StatusProcessing, StatusSuccess, StatusFailed, StatusRetrying} {
		assert.True(t, ValidStatus(s), string(s))
	}
	assert.False(t, ValidStatus(Status("PENDING")))
	assert.False(t, ValidStatus(Status("")))
}

func TestIsTerminal(t *testing.T) {
	testCases := []struct {
		status   Status
		terminal bool
	}{
		{StatusCreated, false},
		{StatusProcessing, false},
		{StatusRetrying, false},
		{StatusSuccess, true},
		{StatusFailed, true},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			tx := &Transaction{Status: tc.status}
			assert.Equal(t, tc.terminal, tx.IsTerminal())
		})
	}
}
