package treasury

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"trvault/crypto"
	"trvault/storage"
	"trvault/native/treasury"
)

var (
	tokenConfigPrefix = []byte("treasury/token/")
	positionPrefix    = []byte("treasury/position/")
	reservePrefix     = []byte("treasury/reserve/")
)

// Manager persists the treasury ledger into a key-value store. Records are
// stored as JSON with amounts encoded as decimal strings; a missing record is
// reported as nil, never as an error.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type storedTokenConfig struct {
	Token                string
	BaseStrategy         string
	BufferThreshold      string
	BufferThresholdUpper string
}

type storedPosition struct {
	Credit  string
	Debt    string
	Ceiling string
	Enabled bool
}

func tokenConfigKey(token string) []byte {
	return append(append([]byte{}, tokenConfigPrefix...), []byte(token)...)
}

func positionKey(strategy crypto.Address, token string) []byte {
	key := append([]byte{}, positionPrefix...)
	key = append(key, []byte(token)...)
	key = append(key, '/')
	return append(key, []byte(hex.EncodeToString(strategy.Bytes()))...)
}

func reserveKey(token string) []byte {
	return append(append([]byte{}, reservePrefix...), []byte(token)...)
}

// TokenConfig loads the reserve routing config for a token.
func (m *Manager) TokenConfig(token string) (*treasury.TokenConfig, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("treasury state: manager unavailable")
	}
	var stored storedTokenConfig
	ok, err := m.kvGet(tokenConfigKey(token), &stored)
	if err != nil || !ok {
		return nil, err
	}
	cfg := &treasury.TokenConfig{Token: stored.Token}
	if stored.BaseStrategy != "" {
		base, err := crypto.DecodeAddress(stored.BaseStrategy)
		if err != nil {
			return nil, fmt.Errorf("treasury state: decode base strategy: %w", err)
		}
		cfg.BaseStrategy = base
	}
	if cfg.BufferThreshold, err = decodeAmount(stored.BufferThreshold); err != nil {
		return nil, err
	}
	if cfg.BufferThresholdUpper, err = decodeAmount(stored.BufferThresholdUpper); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PutTokenConfig stores the reserve routing config for a token.
func (m *Manager) PutTokenConfig(cfg *treasury.TokenConfig) error {
	if m == nil || m.db == nil {
		return errors.New("treasury state: manager unavailable")
	}
	if cfg == nil || cfg.Token == "" {
		return errors.New("treasury state: token config missing token")
	}
	stored := storedTokenConfig{
		Token:                cfg.Token,
		BufferThreshold:      encodeAmount(cfg.BufferThreshold),
		BufferThresholdUpper: encodeAmount(cfg.BufferThresholdUpper),
	}
	if !cfg.BaseStrategy.IsZero() {
		stored.BaseStrategy = cfg.BaseStrategy.String()
	}
	return m.kvPut(tokenConfigKey(cfg.Token), &stored)
}

// Position loads the (strategy, token) ledger record.
func (m *Manager) Position(strategy crypto.Address, token string) (*treasury.Position, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("treasury state: manager unavailable")
	}
	var stored storedPosition
	ok, err := m.kvGet(positionKey(strategy, token), &stored)
	if err != nil || !ok {
		return nil, err
	}
	pos := &treasury.Position{Enabled: stored.Enabled}
	if pos.Credit, err = decodeAmount(stored.Credit); err != nil {
		return nil, err
	}
	if pos.Debt, err = decodeAmount(stored.Debt); err != nil {
		return nil, err
	}
	if pos.Ceiling, err = decodeAmount(stored.Ceiling); err != nil {
		return nil, err
	}
	return pos, nil
}

// PutPosition stores the (strategy, token) ledger record.
func (m *Manager) PutPosition(strategy crypto.Address, token string, pos *treasury.Position) error {
	if m == nil || m.db == nil {
		return errors.New("treasury state: manager unavailable")
	}
	if pos == nil {
		return errors.New("treasury state: position missing")
	}
	stored := storedPosition{
		Credit:  encodeAmount(pos.Credit),
		Debt:    encodeAmount(pos.Debt),
		Ceiling: encodeAmount(pos.Ceiling),
		Enabled: pos.Enabled,
	}
	return m.kvPut(positionKey(strategy, token), &stored)
}

// Reserve loads the vault's tracked local balance for a token.
func (m *Manager) Reserve(token string) (*uint256.Int, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("treasury state: manager unavailable")
	}
	raw, err := m.db.Get(reserveKey(token))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAmount(string(raw))
}

// PutReserve stores the vault's tracked local balance for a token.
func (m *Manager) PutReserve(token string, balance *uint256.Int) error {
	if m == nil || m.db == nil {
		return errors.New("treasury state: manager unavailable")
	}
	return m.db.Put(reserveKey(token), []byte(encodeAmount(balance)))
}

func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("treasury state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) kvPut(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("treasury state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func encodeAmount(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}

func decodeAmount(raw string) (*uint256.Int, error) {
	if raw == "" {
		return uint256.NewInt(0), nil
	}
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("treasury state: decode amount %q: %w", raw, err)
	}
	return amount, nil
}
