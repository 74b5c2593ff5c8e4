package pricing

import (
	"inviqa/notification-relay/config"
	"inviqa/notification-relay/notification"

	"github.com/pkg/errors"
)

type Cost struct {
	Channel   notification.Channel `json:"channel"`
	Count     int                  `json:"count"`
	UnitPrice float64              `json:"unitPrice"`
	Total     float64              `json:"total"`
	Currency  string               `json:"currency"`
}

// tier discounts the unit price once a vendor's monthly volume reaches From.
type tier struct {
	From     int
	Discount float64
}

var tiers = []tier{
	{From: 100000, Discount: 0.3},
	{From: 10000, Discount: 0.15},
	{From: 1000, Discount: 0.05},
}

// TieredEstimator prices messages from a per-channel unit price with volume
// discounts based on how much the vendor has already sent this month.
type TieredEstimator struct {
	unitPrices map[notification.Channel]float64
}

func NewTieredEstimator(cfg *config.Config) *TieredEstimator {
	return &TieredEstimator{
		unitPrices: map[notification.Channel]float64{
			notification.ChannelEmail: cfg.PriceEmailUnit,
			notification.ChannelSMS:   cfg.PriceSmsUnit,
		},
	}
}

func (e *TieredEstimator) Estimate(ch notification.Channel, count, monthlyVolume int) (Cost, error) {
	unit, ok := e.unitPrices[ch]
	if !ok {
		return Cost{}, errors.Wrapf(notification.ErrUnsupportedChannel, "pricing: no unit price for %s", ch)
	}
	if count < 0 || monthlyVolume < 0 {
		return Cost{}, errors.Errorf("pricing: negative count (%d) or volume (%d)", count, monthlyVolume)
	}

	for _, t := range tiers {
		if monthlyVolume >= t.From {
			unit = unit * (1 - t.Discount)
			break
		}
	}

	return Cost{
		Channel:   ch,
		Count:     count,
		UnitPrice: unit,
		Total:     unit * float64(count),
		Currency:  "USD",
	}, nil
}
