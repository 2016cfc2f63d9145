// Package notify is the boundary to the alerting subsystem. Alerts are
// fire-and-forget descriptions of things the player should glance at; the
// delivery mechanism (push, banner, sound) lives outside this module.
package notify

import (
	"go.uber.org/zap"

	"github.com/Raincor5/tacmap/internal/game"
)

type Urgency string

const (
	UrgencyInfo     Urgency = "info"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

type AlertType string

const (
	AlertPinAdded         AlertType = "pinAdded"
	AlertPlayerJoined     AlertType = "playerJoined"
	AlertPlayerLeft       AlertType = "playerLeft"
	AlertConnectionFailed AlertType = "connectionFailed"
	AlertSessionEnded     AlertType = "sessionEnded"
)

type Notifier interface {
	Alert(alertType AlertType, text string, urgency Urgency, at *game.Coordinate)
}

// LogNotifier writes alerts to the structured log. It stands in wherever a
// real alert sink is not wired up.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Alert(alertType AlertType, text string, urgency Urgency, at *game.Coordinate) {
	fields := []zap.Field{
		zap.String("alert", string(alertType)),
		zap.String("urgency", string(urgency)),
	}
	if at != nil {
		fields = append(fields, zap.Float64("lat", at.Latitude), zap.Float64("lon", at.Longitude))
	}
	n.Log.Info(text, fields...)
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Alert(AlertType, string, Urgency, *game.Coordinate) {}
