package formance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"invest-ledger-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	defaultLedgerName = "invest-ledger"
	defaultAsset      = "USDT"
)

// assetPrecision lists the currencies a ledger can be denominated in and
// their decimal precision on the mirror.
var assetPrecision = map[string]int{
	"USD":  2,
	"USDC": 6,
	"USDT": 6,
}

// Service mirrors completed ledger activity into a Formance Stack ledger.
// The local SQLite ledger stays authoritative; the mirror is write-behind.
type Service struct {
	client *v3.Formance
	ledger string
	asset  string
}

// NewService connects to the stack and creates the ledger if it doesn't
// already exist.
func NewService(ctx context.Context, cfg models.FormanceConfig) (*Service, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if _, ok := assetPrecision[cfg.Asset]; cfg.Asset != "" && !ok {
		return nil, fmt.Errorf("unsupported mirror asset %q", cfg.Asset)
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	svc := newService(cfg, v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithClient(httpClient),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	))

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", svc.ledger))

	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance mirror initialized", zap.String("ledger", svc.ledger), zap.String("asset", svc.asset))
	return svc, nil
}

func newService(cfg models.FormanceConfig, client *v3.Formance) *Service {
	ledger := cfg.LedgerName
	if ledger == "" {
		ledger = defaultLedgerName
	}
	asset := cfg.Asset
	if asset == "" {
		asset = defaultAsset
	}
	return &Service{client: client, ledger: ledger, asset: asset}
}

func createCustomHttpClient() (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "invest-ledger",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

// Close is a no-op for the Formance backend (HTTP client needs no teardown).
func (s *Service) Close() {}

// ---------- helpers ----------

// formanceAsset returns the Formance UMN notation, e.g. "USDT/6".
func formanceAsset(symbol string) string {
	return fmt.Sprintf("%s/%d", symbol, precisionFor(symbol))
}

func precisionFor(symbol string) int {
	if p, ok := assetPrecision[symbol]; ok {
		return p
	}
	return 6
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

// isNotFoundError checks whether a Formance SDK error is NOT_FOUND.
func isNotFoundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumNotFound
}

func strPtr(s string) *string { return &s }
