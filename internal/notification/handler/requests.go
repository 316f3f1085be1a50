package handler

import (
	"strings"
	"time"

	"safecircle/internal/notification/models"
	"safecircle/internal/notification/preferences"
	dErrors "safecircle/pkg/domain-errors"
)

const maxActionLength = 500

type ListNotificationsResponse struct {
	Notifications []*models.Record `json:"notifications"`
}

type RecordActionRequest struct {
	Action string `json:"action"`
}

func (r *RecordActionRequest) Validate() error {
	r.Action = strings.TrimSpace(r.Action)
	if r.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "action is required")
	}
	if len(r.Action) > maxActionLength {
		return dErrors.New(dErrors.CodeValidation, "action must be at most 500 characters")
	}
	return nil
}

type DeliveryCallbackRequest struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`

	channel models.Channel
	status  models.DeliveryStatus
}

func (r *DeliveryCallbackRequest) Validate() error {
	ch, err := models.ParseChannel(r.Channel)
	if err != nil {
		return err
	}
	status, err := models.ParseDeliveryStatus(r.Status)
	if err != nil {
		return err
	}
	if status == models.DeliveryPending {
		return dErrors.New(dErrors.CodeValidation, "callback status must be terminal")
	}
	r.channel, r.status = ch, status
	return nil
}

// PreferencesRequest replaces the caller's preferences wholesale. The user
// id in the body is ignored.
type PreferencesRequest struct {
	models.Preferences
}

func (r *PreferencesRequest) Validate() error {
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return dErrors.Newf(dErrors.CodeValidation, "unknown timezone %q", r.Timezone)
		}
	}
	if r.Digest.Frequency != "" {
		if _, err := models.ParseDigestFrequency(string(r.Digest.Frequency)); err != nil {
			return err
		}
	}
	if err := validateWindow(r.DoNotDisturb); err != nil {
		return err
	}
	channels := make(map[models.Channel]models.ChannelPreference, len(r.Channels))
	for key, cp := range r.Channels {
		ch, err := models.ParseChannel(string(key))
		if err != nil {
			return err
		}
		channels[ch] = cp
		if err := validateWindow(cp.QuietHours); err != nil {
			return err
		}
		if cp.RateLimit != nil && (cp.RateLimit.Max <= 0 || cp.RateLimit.Window <= 0) {
			return dErrors.Newf(dErrors.CodeValidation, "rate limit for %s must be positive", ch)
		}
	}
	r.Channels = channels
	return nil
}

func validateWindow(q *models.QuietHours) error {
	if err := preferences.ValidateQuietHours(q); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	return nil
}
