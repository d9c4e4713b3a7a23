package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
)

var gasPriceGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pagemarket_gas_price_wei",
	Help: "Latest gas price quote used for submissions",
})

// FixedGasPrice always quotes the same price
type FixedGasPrice struct {
	Price *big.Int
}

// GasPrice returns the fixed price
func (f FixedGasPrice) GasPrice(context.Context) (*big.Int, error) {
	if f.Price == nil {
		return nil, errors.New("fixed gas price not set")
	}
	return new(big.Int).Set(f.Price), nil
}

// GasPriceSource quotes the node's current gas price
type GasPriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasOracle keeps a periodically refreshed gas price quote. The quote is read when a
// transaction is submitted, never when its call is constructed.
type GasOracle struct {
	source     GasPriceSource
	config     config.GasConfig
	logger     *zap.Logger
	current    atomic.Pointer[big.Int]
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	maxPriceWi *big.Int
}

// NewGasOracle creates a new gas oracle
func NewGasOracle(source GasPriceSource, cfg config.GasConfig, logger *zap.Logger) *GasOracle {
	var maxPrice *big.Int
	if cfg.MaxPriceGwei > 0 {
		maxPrice = new(big.Int).Mul(big.NewInt(cfg.MaxPriceGwei), big.NewInt(1_000_000_000))
	}
	return &GasOracle{
		source:     source,
		config:     cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
		maxPriceWi: maxPrice,
	}
}

// Start begins refreshing the quote in the background
func (o *GasOracle) Start(ctx context.Context) {
	o.wg.Add(1)
	go o.runRefreshLoop(ctx)
}

// Stop stops the refresh loop
func (o *GasOracle) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
	})
	o.wg.Wait()
}

// GasPrice returns the latest quote, fetching one if none is cached yet
func (o *GasOracle) GasPrice(ctx context.Context) (*big.Int, error) {
	if price := o.current.Load(); price != nil {
		return new(big.Int).Set(price), nil
	}
	price, err := o.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(price), nil
}

func (o *GasOracle) runRefreshLoop(ctx context.Context) {
	defer o.wg.Done()

	interval := o.config.RefreshInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	o.refreshAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.refreshAndLog(ctx)
		}
	}
}

func (o *GasOracle) refreshAndLog(ctx context.Context) {
	if _, err := o.refresh(ctx); err != nil {
		o.logger.Warn("Failed to refresh gas price", zap.Error(err))
	}
}

func (o *GasOracle) refresh(ctx context.Context) (*big.Int, error) {
	suggested, err := o.source.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	price := o.applyPolicy(suggested)
	o.current.Store(price)

	f, _ := new(big.Float).SetInt(price).Float64()
	gasPriceGauge.Set(f)

	o.logger.Debug("Refreshed gas price",
		zap.String("suggested", suggested.String()),
		zap.String("price", price.String()),
	)

	return price, nil
}

// applyPolicy scales the suggestion by the configured multiplier and caps it
func (o *GasOracle) applyPolicy(suggested *big.Int) *big.Int {
	price := new(big.Int).Set(suggested)
	if o.config.MultiplierPercent > 0 {
		price.Mul(price, big.NewInt(o.config.MultiplierPercent))
		price.Div(price, big.NewInt(100))
	}
	if o.maxPriceWi != nil && price.Cmp(o.maxPriceWi) > 0 {
		price.Set(o.maxPriceWi)
	}
	return price
}
