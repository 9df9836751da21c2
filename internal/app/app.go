// Package app wires stores and services together for the server and the
// CLI maintenance commands.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/chat"
	"github.com/misiones-arrienda/arrienda/internal/cleanup"
	"github.com/misiones-arrienda/arrienda/internal/community"
	"github.com/misiones-arrienda/arrienda/internal/config"
	"github.com/misiones-arrienda/arrienda/internal/email"
	"github.com/misiones-arrienda/arrienda/internal/inquiry"
	"github.com/misiones-arrienda/arrienda/internal/notification"
	"github.com/misiones-arrienda/arrienda/internal/payment"
	"github.com/misiones-arrienda/arrienda/internal/payment/mercadopago"
	"github.com/misiones-arrienda/arrienda/internal/property"
	"github.com/misiones-arrienda/arrienda/internal/storage"
)

// UploadsPrefix is the URL path local images are served under.
const UploadsPrefix = "/uploads/"

// App holds every wired component.
type App struct {
	Config config.Config
	DB     *sql.DB

	Users      *auth.UserStore
	Tokens     *auth.TokenStore
	Sessions   *auth.SessionStore
	Issuer     *auth.TokenIssuer
	Passkeys   *auth.PasskeyStore
	MagicLinks *auth.Mailer
	Mail       *email.Mailer

	Bucket        storage.Bucket
	UploadsDir    string
	Notifications *notification.Repository
	Properties    *property.Service
	Hub           *chat.Hub
	Chat          *chat.Service
	Community     *community.Service
	Payments      *payment.Service
	Cleanup       *cleanup.Job
}

// New builds the application on an open database.
func New(ctx context.Context, cfg config.Config, conn *sql.DB) (*App, error) {
	a := &App{Config: cfg, DB: conn}

	a.Mail = email.NewMailer(email.SMTPConfig{
		Host: cfg.SMTP.Host,
		Port: cfg.SMTP.Port,
		User: cfg.SMTP.User,
		Pass: cfg.SMTP.Pass,
		From: cfg.SMTP.From,
	}, cfg.DevMode)

	a.Users = auth.NewUserStore(conn, cfg.AdminEmail)
	a.Tokens = auth.NewTokenStore(conn)
	a.Sessions = auth.NewSessionStore(conn, !cfg.DevMode)
	a.Issuer = auth.NewTokenIssuer(cfg.SigningSecret(), cfg.JWTTTL)
	a.Passkeys = auth.NewPasskeyStore(conn)
	a.MagicLinks = auth.NewMailer(a.Mail, cfg.BaseURL)

	bucket, err := newBucket(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	a.Bucket = bucket

	a.Notifications = notification.NewRepository(conn)
	listings := property.NewRepository(conn)
	a.Properties = property.NewService(property.ServiceConfig{
		Repo:       listings,
		Inquiries:  inquiry.NewRepository(conn),
		Users:      a.Users,
		Bucket:     bucket,
		Notifier:   a.Notifications,
		Mailer:     a.Mail,
		ListingTTL: cfg.ListingTTL,
		BaseURL:    cfg.BaseURL,
	})

	profiles := community.NewRepository(conn)
	a.Hub = chat.NewHub()
	a.Chat = chat.NewService(chat.NewRepository(conn), a.Hub, profiles, listings, a.Notifications)
	a.Community = community.NewService(profiles, a.Chat, a.Notifications)

	var gateway payment.Gateway
	if cfg.MercadoPago.Enabled() {
		mp, err := mercadopago.NewClient(cfg.MercadoPago.AccessToken, cfg.MercadoPago.APIURL)
		if err != nil {
			return nil, fmt.Errorf("creating payment client: %w", err)
		}
		gateway = mp
	} else {
		slog.Info("payments disabled", "reason", "MP_ACCESS_TOKEN not set")
	}
	a.Payments = payment.NewService(payment.NewRepository(conn), gateway, listings, a.Notifications, cfg.BaseURL)

	a.Cleanup = &cleanup.Job{
		Listings:      a.Properties,
		Promotions:    listings,
		Tokens:        a.Tokens,
		Sessions:      a.Sessions,
		Notifications: a.Notifications,
	}

	return a, nil
}

func newBucket(ctx context.Context, cfg config.Config, a *App) (storage.Bucket, error) {
	if cfg.Storage.Backend == "s3" {
		b, err := storage.NewS3Bucket(ctx, storage.S3Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("opening image bucket: %w", err)
		}
		return b, nil
	}

	dir := cfg.Storage.Dir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(dbPath(cfg)), "uploads")
	}
	b, err := storage.NewLocalBucket(dir, UploadsPrefix)
	if err != nil {
		return nil, fmt.Errorf("opening image directory: %w", err)
	}
	a.UploadsDir = dir
	return b, nil
}

func dbPath(cfg config.Config) string {
	if cfg.DBPath != "" {
		return cfg.DBPath
	}
	return "."
}

// Close stops background pieces. The database is owned by the caller.
func (a *App) Close() {
	a.Hub.Close()
}
