package inapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// Kind distinguishes plain in-app wallets from ecosystem wallets.
type Kind int

const (
	KindInApp Kind = iota
	KindEcosystem
)

func (k Kind) String() string {
	if k == KindEcosystem {
		return "ecosystem"
	}
	return "inapp"
}

// OTPPrompter asks the user for the one-time password sent to destination.
type OTPPrompter interface {
	PromptOTP(ctx context.Context, destination string) (string, error)
}

// OTPPrompterFunc adapts a function to OTPPrompter.
type OTPPrompterFunc func(ctx context.Context, destination string) (string, error)

func (f OTPPrompterFunc) PromptOTP(ctx context.Context, destination string) (string, error) {
	return f(ctx, destination)
}

// Deps are the collaborators of a custodial wallet.
type Deps struct {
	Client   *Client
	Sessions wallet.ChainSessions
	Prompter OTPPrompter
	Browser  Browser
	Logger   *slog.Logger
}

// Wallet is a custodial wallet whose key is held by the wallet backend.
// The login session is persisted in the configured storage dir.
type Wallet struct {
	kind     Kind
	opts     wallet.InAppOptions
	client   *Client
	store    *sessionStore
	sessions wallet.ChainSessions
	prompter OTPPrompter
	browser  Browser
	logger   *slog.Logger

	mu      sync.RWMutex
	session *Session
	chainID int64
}

// New builds an in-app wallet and loads any persisted session.
func New(opts wallet.InAppOptions, chainID int64, deps Deps) (*Wallet, error) {
	return newWallet(KindInApp, opts, chainID, deps)
}

// NewEcosystem builds an ecosystem wallet. deps.Client must be scoped with
// WithEcosystem.
func NewEcosystem(opts wallet.EcosystemOptions, chainID int64, deps Deps) (*Wallet, error) {
	if opts.EcosystemID == "" {
		return nil, fmt.Errorf("%w: ecosystem id is required", wallet.ErrConfiguration)
	}
	in := opts.InAppOptions
	if in.StorageDir == "" {
		in.StorageDir = filepath.Join(wallet.DefaultStorageDir(KindEcosystem.String()), storageName(opts.EcosystemID))
	}
	return newWallet(KindEcosystem, in, chainID, deps)
}

func newWallet(kind Kind, opts wallet.InAppOptions, chainID int64, deps Deps) (*Wallet, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("%w: wallet backend client is required", wallet.ErrConfiguration)
	}
	if opts.StorageDir == "" {
		opts.StorageDir = wallet.DefaultStorageDir(kind.String())
	}
	opts.Email = NormalizeEmail(opts.Email)
	opts.PhoneNumber = NormalizePhone(opts.PhoneNumber)

	store, err := newSessionStore(opts.StorageDir, opts.LegacyEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wallet.ErrConfiguration, err)
	}

	w := &Wallet{
		kind:     kind,
		opts:     opts,
		client:   deps.Client,
		store:    store,
		sessions: deps.Sessions,
		prompter: deps.Prompter,
		browser:  deps.Browser,
		logger:   deps.Logger,
		chainID:  chainID,
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}

	sess, err := store.Load()
	if err != nil {
		w.logger.Warn("ignoring unreadable wallet session", "dir", opts.StorageDir, "err", err)
	}
	if sess != nil && !sess.matches(&opts) {
		w.logger.Debug("discarding session of another login", "dir", opts.StorageDir, "auth", sess.AuthProvider)
		if err := store.Clear(); err != nil {
			w.logger.Warn("clearing stale wallet session", "dir", opts.StorageDir, "err", err)
		}
		sess = nil
	}
	w.session = sess
	return w, nil
}

// matches reports whether sess was created by the login opts describe.
func (s *Session) matches(opts *wallet.InAppOptions) bool {
	if s.AuthProvider != string(opts.Auth()) {
		return false
	}
	if opts.Email != "" && NormalizeEmail(s.Email) != opts.Email {
		return false
	}
	if opts.PhoneNumber != "" && NormalizePhone(s.Phone) != opts.PhoneNumber {
		return false
	}
	return true
}

// storageName makes an ecosystem id safe to use as one path element.
func storageName(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}

// Kind returns the wallet kind.
func (w *Wallet) Kind() Kind { return w.kind }

// AuthProvider returns the configured login method.
func (w *Wallet) AuthProvider() wallet.AuthProvider { return w.opts.Auth() }

// Session returns a copy of the current session, or nil.
func (w *Wallet) Session() *Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.session == nil {
		return nil
	}
	cp := *w.session
	return &cp
}

func (w *Wallet) Address(context.Context) (common.Address, error) {
	sess := w.Session()
	if sess == nil {
		return common.Address{}, wallet.ErrNotConnected
	}
	return common.HexToAddress(sess.Address), nil
}

func (w *Wallet) AccountType() wallet.AccountType { return wallet.AccountCustodial }

func (w *Wallet) ChainID() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID
}

func (w *Wallet) IsConnected(context.Context) (bool, error) {
	return w.Session() != nil, nil
}

func (w *Wallet) PersonalSign(ctx context.Context, message []byte) ([]byte, error) {
	token, err := w.token()
	if err != nil {
		return nil, err
	}
	sig, err := w.client.SignMessage(ctx, token, message)
	if err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}
	return hexutil.Decode(sig)
}

func (w *Wallet) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	token, err := w.token()
	if err != nil {
		return nil, err
	}
	sig, err := w.client.SignTypedData(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("signing typed data: %w", err)
	}
	return hexutil.Decode(sig)
}

// SendTransaction prepares the transaction locally, has the backend sign
// it and broadcasts the result.
func (w *Wallet) SendTransaction(ctx context.Context, req *wallet.TxRequest) (common.Hash, error) {
	if req == nil {
		return common.Hash{}, fmt.Errorf("%w: transaction request is required", wallet.ErrConfiguration)
	}
	token, err := w.token()
	if err != nil {
		return common.Hash{}, err
	}
	if w.sessions == nil {
		return common.Hash{}, fmt.Errorf("%w: no chain sessions for sending", wallet.ErrConfiguration)
	}
	from, _ := w.Address(ctx)

	chainID := req.ChainID
	if chainID == 0 {
		chainID = w.ChainID()
	}
	sess, err := w.sessions.Get(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := wallet.PrepareTransaction(ctx, sess.Client, chainID, from, req)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := w.client.SignTransaction(ctx, token, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}
	raw, err := hexutil.Decode(signed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("decoding signed transaction: %w", err)
	}
	return sess.Client.SendRawTransaction(ctx, raw)
}

func (w *Wallet) SwitchNetwork(_ context.Context, chainID int64) error {
	if chainID <= 0 {
		return fmt.Errorf("%w: chain id must be greater than 0", wallet.ErrConfiguration)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = chainID
	return nil
}

// Disconnect forgets the session in memory and on disk.
func (w *Wallet) Disconnect(context.Context) error {
	w.mu.Lock()
	w.session = nil
	w.mu.Unlock()
	return w.store.Clear()
}

// LinkAccount attaches toLink's login to this wallet's user. toLink must be
// another custodial wallet; it is logged in first if needed, using the
// OTP, JWT or payload in opts.
func (w *Wallet) LinkAccount(ctx context.Context, toLink wallet.Wallet, opts wallet.LinkOptions) ([]wallet.LinkedAccount, error) {
	token, err := w.token()
	if err != nil {
		return nil, err
	}
	other, ok := toLink.(*Wallet)
	if !ok {
		return nil, fmt.Errorf("%w: only custodial wallets can be linked", wallet.ErrUnsupported)
	}
	if other == w {
		return nil, fmt.Errorf("%w: cannot link a wallet to itself", wallet.ErrConfiguration)
	}

	if connected, _ := other.IsConnected(ctx); !connected {
		if err := other.loginForLink(ctx, opts); err != nil {
			return nil, err
		}
	}
	otherToken, err := other.token()
	if err != nil {
		return nil, err
	}

	accounts, err := w.client.LinkAccount(ctx, token, otherToken)
	if err != nil {
		return nil, fmt.Errorf("linking account: %w", err)
	}
	return accounts, nil
}

// GetLinkedAccounts lists every login attached to this wallet's user.
func (w *Wallet) GetLinkedAccounts(ctx context.Context) ([]wallet.LinkedAccount, error) {
	token, err := w.token()
	if err != nil {
		return nil, err
	}
	return w.client.LinkedAccounts(ctx, token)
}

func (w *Wallet) token() (string, error) {
	sess := w.Session()
	if sess == nil {
		return "", wallet.ErrNotConnected
	}
	return sess.AuthToken, nil
}

// complete stores a successful login.
func (w *Wallet) complete(res *AuthResult) error {
	if res == nil || res.AuthToken == "" {
		return fmt.Errorf("%w: backend returned no session", wallet.ErrAuthentication)
	}
	if !common.IsHexAddress(res.WalletAddress) {
		return fmt.Errorf("%w: backend returned invalid address %q", wallet.ErrAuthentication, res.WalletAddress)
	}

	sess := &Session{
		AuthToken:    res.AuthToken,
		Address:      common.HexToAddress(res.WalletAddress).Hex(),
		AuthProvider: string(w.opts.Auth()),
		Email:        firstNonEmpty(w.opts.Email, res.Email),
		Phone:        firstNonEmpty(w.opts.PhoneNumber, res.Phone),
		CreatedAt:    time.Now().UTC(),
	}
	if err := w.store.Save(sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	w.mu.Lock()
	w.session = sess
	w.mu.Unlock()
	w.logger.Debug("custodial wallet logged in", "kind", w.kind, "address", sess.Address, "provider", sess.AuthProvider)
	return nil
}

// parseAuthResult decodes the authResult value of a browser redirect.
func parseAuthResult(raw string) (*AuthResult, error) {
	var res AuthResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decoding auth result: %w", err)
	}
	return &res, nil
}

// NormalizeEmail folds an email address to its canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}

// NormalizePhone folds a phone number to "+digits" form, dropping spacing
// and punctuation.
func NormalizePhone(phone string) string {
	phone = norm.NFKC.String(phone)
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func newGuestID() string { return uuid.NewString() }
