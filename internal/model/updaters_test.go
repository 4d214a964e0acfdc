package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlayerData(t *testing.T) {
	d := DefaultPlayerData()
	assert.Equal(t, int64(0), d.Balance.Money)
	assert.Equal(t, 1.0, d.Settings.Audio.MusicVolume)
	assert.Equal(t, 1.0, d.Settings.Audio.SFXVolume)
	assert.Empty(t, d.Mtx.ReceiptHistory)
	require.NoError(t, d.Validate())
}

func TestUpdatersDoNotMutateInput(t *testing.T) {
	before := DefaultPlayerData()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	after := Compose(
		AddBalance(100),
		SetBadgeStatus("1", true),
		AddProductPurchase("3", 100, now),
		SetGamePassActive("1", true),
		AppendReceipt("X", 50),
	)(before)

	assert.Equal(t, int64(0), before.Balance.Money)
	assert.Empty(t, before.Achievements.Badges)
	assert.Empty(t, before.Mtx.Products)
	assert.Empty(t, before.Mtx.GamePasses)
	assert.Empty(t, before.Mtx.ReceiptHistory)

	assert.Equal(t, int64(100), after.Balance.Money)
	assert.True(t, after.Achievements.Badges["1"])
	assert.Equal(t, 1, after.Mtx.Products["3"].TimesPurchased)
	assert.Equal(t, []PurchaseInfo{{Price: 100, Time: now}}, after.Mtx.Products["3"].PurchaseInfo)
	assert.True(t, after.Mtx.GamePasses["1"].Active)
	assert.True(t, after.HasReceipt("X"))
}

func TestAddProductPurchaseAccumulates(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	d := DefaultPlayerData()
	d = AddProductPurchase("3", 100, now)(d)
	d = AddProductPurchase("3", 50, now.Add(time.Minute))(d)

	p := d.Mtx.Products["3"]
	assert.Equal(t, 2, p.TimesPurchased)
	require.Len(t, p.PurchaseInfo, 2)
	assert.Equal(t, int64(50), p.PurchaseInfo[1].Price)
}

func TestAppendReceiptKeepsMostRecent(t *testing.T) {
	d := DefaultPlayerData()
	for i := range 60 {
		d = AppendReceipt(fmt.Sprintf("p-%d", i), 50)(d)
	}

	require.Len(t, d.Mtx.ReceiptHistory, 50)
	assert.Equal(t, "p-10", d.Mtx.ReceiptHistory[0])
	assert.Equal(t, "p-59", d.Mtx.ReceiptHistory[49])
	assert.False(t, d.HasReceipt("p-9"))
	assert.True(t, d.HasReceipt("p-10"))
}

func TestAppendReceiptAtCapacityBoundary(t *testing.T) {
	d := DefaultPlayerData()
	for i := range 50 {
		d = AppendReceipt(fmt.Sprintf("p-%d", i), 50)(d)
	}
	require.Len(t, d.Mtx.ReceiptHistory, 50)
	assert.True(t, d.HasReceipt("p-0"))

	d = AppendReceipt("p-50", 50)(d)
	require.Len(t, d.Mtx.ReceiptHistory, 50)
	assert.False(t, d.HasReceipt("p-0"))
}

func TestVolumeSettersClamp(t *testing.T) {
	d := SetMusicVolume(2)(DefaultPlayerData())
	d = SetSFXVolume(-1)(d)
	assert.Equal(t, 1.0, d.Settings.Audio.MusicVolume)
	assert.Equal(t, 0.0, d.Settings.Audio.SFXVolume)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PlayerData)
	}{
		{"negative balance", func(d *PlayerData) { d.Balance.Money = -1 }},
		{"volume above one", func(d *PlayerData) { d.Settings.Audio.MusicVolume = 1.5 }},
		{"negative purchase count", func(d *PlayerData) {
			d.Mtx.Products["3"] = ProductData{TimesPurchased: -1}
		}},
		{"empty receipt id", func(d *PlayerData) { d.Mtx.ReceiptHistory = []string{""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DefaultPlayerData()
			tt.mutate(&d)
			assert.ErrorIs(t, d.Validate(), ErrRecordInvalid)
		})
	}
}

func TestNormalizeFillsMissingCollections(t *testing.T) {
	d := PlayerData{}.Normalize()
	assert.NotNil(t, d.Achievements.Badges)
	assert.NotNil(t, d.Mtx.GamePasses)
	assert.NotNil(t, d.Mtx.Products)
	assert.NotNil(t, d.Mtx.ReceiptHistory)
}

func TestCatalogFor(t *testing.T) {
	dev := CatalogFor(EnvironmentDevelopment)
	prod := CatalogFor(ParseEnvironment("Production"))

	assert.Equal(t, ProductID("3"), dev.Products[ProductExample])
	assert.Equal(t, ProductID("4"), prod.Products[ProductExample])
	assert.Equal(t, []GamePassID{"1"}, dev.GamePassIDs())
	assert.True(t, dev.HasProduct("3"))
	assert.False(t, dev.HasProduct("4"))
}

func TestParseUserID(t *testing.T) {
	id, err := ParseUserID("42")
	require.NoError(t, err)
	assert.Equal(t, UserID(42), id)
	assert.Equal(t, "42", id.String())

	_, err = ParseUserID("abc")
	assert.Error(t, err)
	_, err = ParseUserID("0")
	assert.Error(t, err)
}
