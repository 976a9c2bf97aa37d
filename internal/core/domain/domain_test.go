package domain

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	t.Run("HalfAwayFromZero", func(t *testing.T) {
		assert.Equal(t, 1.01, Round2(1.005))
		assert.Equal(t, -1.01, Round2(-1.005))
		assert.Equal(t, 2.68, Round2(2.675))
		assert.Equal(t, 137.99, Round2(137.99))
	})

	t.Run("NonFinite", func(t *testing.T) {
		assert.Equal(t, 0.0, Round2(math.NaN()))
		assert.Equal(t, 0.0, Round2(math.Inf(1)))
	})

	t.Run("Format", func(t *testing.T) {
		assert.Equal(t, "130.00", FormatMoney(130))
		assert.Equal(t, "0.30", FormatMoney(0.3))
		assert.Equal(t, "7.99", FormatMoney(7.99))
	})

	t.Run("Cents", func(t *testing.T) {
		assert.Equal(t, int64(13799), Cents(137.99))
		assert.Equal(t, int64(30), Cents(0.3))
	})

	t.Run("MoneyEqual", func(t *testing.T) {
		assert.True(t, MoneyEqual(137.99, 138.00))
		assert.True(t, MoneyEqual(137.99, 137.98))
		assert.False(t, MoneyEqual(137.99, 138.01))
		assert.False(t, MoneyEqual(50, 137.99))
	})
}

func TestShippingMethodsResolve(t *testing.T) {
	ms := DefaultShippingMethods()

	assert.Equal(t, 14.99, ms.Resolve("express").Price)
	assert.Equal(t, 14.99, ms.Resolve(" EXPRESS ").Price)
	assert.Equal(t, 0.0, ms.Resolve("pickup").Price)
	assert.Equal(t, 7.99, ms.Resolve("drone").Price)
	assert.Equal(t, 7.99, ms.Resolve("").Price)

	noStandard := ShippingMethods{{ID: "express", Price: 14.99}}
	assert.Equal(t, 0.0, noStandard.Resolve("drone").Price)
}

func TestStoreSettingsNormalize(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		s := StoreSettings{}.Normalize()
		assert.Equal(t, "USD", s.Currency)
		assert.Equal(t, EnvSandbox, s.PayPalMode)
		assert.Equal(t, EnvSandbox, s.SquareEnv)
		assert.Len(t, s.ShippingMethods, 3)
	})

	t.Run("Invalid", func(t *testing.T) {
		s := StoreSettings{
			Currency:   "eur",
			TaxRate:    150,
			FeePercent: math.NaN(),
			FeeFixed:   -1,
			PayPalMode: "LIVE",
			SquareEnv:  "staging",
			ShippingMethods: ShippingMethods{
				{ID: " Express ", Price: math.Inf(1)},
				{ID: ""},
			},
		}.Normalize()
		assert.Equal(t, "EUR", s.Currency)
		assert.Equal(t, 100.0, s.TaxRate)
		assert.Equal(t, 0.0, s.FeePercent)
		assert.Equal(t, 0.0, s.FeeFixed)
		assert.Equal(t, EnvLive, s.PayPalMode)
		assert.Equal(t, EnvSandbox, s.SquareEnv)
		require.Len(t, s.ShippingMethods, 1)
		assert.Equal(t, "express", s.ShippingMethods[0].ID)
		assert.Equal(t, 0.0, s.ShippingMethods[0].Price)
	})
}

func TestOrderStatus(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusPaid))
	assert.True(t, StatusPaid.CanTransition(StatusShipped))
	assert.True(t, StatusShipped.CanTransition(StatusDelivered))
	assert.True(t, StatusShipped.CanTransition(StatusCancelled))
	assert.False(t, StatusDelivered.CanTransition(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransition(StatusPaid))
	assert.False(t, StatusPaid.CanTransition(StatusPending))

	assert.True(t, StatusShipped.Paid())
	assert.False(t, StatusPending.Paid())
	assert.False(t, OrderStatus("lost").Valid())
}

func TestNewOrderID(t *testing.T) {
	a, b := NewOrderID(), NewOrderID()
	assert.True(t, strings.HasPrefix(a, "TS-"))
	assert.NotEqual(t, a, b)
}

func TestCustomerMissing(t *testing.T) {
	c := Customer{Name: "Ann", Email: "ann@example.com", City: "Austin"}
	assert.Equal(t, []string{"address1", "state", "zip", "country"}, c.Missing())
	assert.True(t, c.HasEmail())
}
