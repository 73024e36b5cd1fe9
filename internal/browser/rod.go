package browser

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// RodConfig configures RodLauncher.
type RodConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome per session.
	RemoteURL string

	Headless bool

	// NavigationTimeout bounds Navigate including the load event. Default: 30s.
	NavigationTimeout time.Duration

	// ActionTimeout bounds every single element interaction. Default: 10s.
	ActionTimeout time.Duration

	Logger *zap.Logger
}

func (c *RodConfig) defaults() {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// RodLauncher opens stealth pages in a fresh browser for every session: a new
// local Chrome process, or a new incognito context on a remote one. A remote
// browser is connected once per launcher and shared by all sessions.
type RodLauncher struct {
	cfg RodConfig

	// connect dials a remote browser; replaced in tests.
	connect func(url string) (*rod.Browser, error)

	mu         sync.Mutex
	root       *rod.Browser
	rootCancel context.CancelFunc
}

func NewRodLauncher(cfg RodConfig) *RodLauncher {
	cfg.defaults()
	l := &RodLauncher{cfg: cfg}
	l.connect = l.dialRemote
	return l
}

func (l *RodLauncher) Open(ctx context.Context) (Page, error) {
	if l.cfg.RemoteURL != "" {
		return l.openRemote(ctx)
	}
	return l.openLocal(ctx)
}

func (l *RodLauncher) openLocal(ctx context.Context) (Page, error) {
	log := l.cfg.Logger
	lnch := launcher.New().
		Context(ctx).
		Headless(l.cfg.Headless).
		Leakless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("no-sandbox")
	wsURL, err := lnch.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "browser: launch")
	}
	log.Debug("browser: launched local chrome", zap.String("url", wsURL), zap.Bool("headless", l.cfg.Headless))

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		lnch.Kill()
		lnch.Cleanup()
		return nil, errors.Wrap(err, "browser: connect")
	}

	page, err := stealth.Page(b)
	if err != nil {
		closeQuietly(b, lnch)
		return nil, errors.Wrap(err, "browser: create stealth page")
	}
	return &rodPage{page: page, browser: b, launcher: lnch, cfg: l.cfg}, nil
}

// openRemote isolates the session in its own incognito context on the
// shared remote browser. Closing the page disposes only that context.
func (l *RodLauncher) openRemote(ctx context.Context) (Page, error) {
	root, err := l.remoteRoot()
	if err != nil {
		return nil, err
	}

	inc, err := root.Context(ctx).Incognito()
	if err != nil {
		// The remote side may have restarted; dial again next time.
		l.dropRoot(root)
		return nil, errors.Wrap(err, "browser: incognito context")
	}

	page, err := stealth.Page(inc)
	if err != nil {
		closeQuietly(inc, nil)
		return nil, errors.Wrap(err, "browser: create stealth page")
	}
	return &rodPage{page: page, browser: inc, cfg: l.cfg}, nil
}

// remoteRoot returns the shared connection to the remote browser, dialing it
// on first use.
func (l *RodLauncher) remoteRoot() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.root != nil {
		return l.root, nil
	}
	b, err := l.connect(l.cfg.RemoteURL)
	if err != nil {
		return nil, err
	}
	l.root = b
	return b, nil
}

func (l *RodLauncher) dialRemote(url string) (*rod.Browser, error) {
	l.cfg.Logger.Debug("browser: connecting to remote", zap.String("url", url))
	rootCtx, cancel := context.WithCancel(context.Background())
	b := rod.New().Context(rootCtx).ControlURL(url)
	if err := b.Connect(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "browser: connect remote")
	}
	l.rootCancel = cancel
	return b, nil
}

func (l *RodLauncher) dropRoot(b *rod.Browser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.root != b {
		return
	}
	l.root = nil
	if l.rootCancel != nil {
		l.rootCancel()
		l.rootCancel = nil
	}
}

// Close releases the shared remote connection. The remote browser itself
// keeps running. Local sessions need no launcher-level cleanup.
func (l *RodLauncher) Close() error {
	l.mu.Lock()
	b := l.root
	l.mu.Unlock()
	if b != nil {
		l.dropRoot(b)
	}
	return nil
}

func closeQuietly(b *rod.Browser, lnch *launcher.Launcher) {
	_ = b.Close()
	if lnch != nil {
		lnch.Kill()
		lnch.Cleanup()
	}
}

type rodPage struct {
	page     *rod.Page
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      RodConfig
}

func (p *rodPage) Navigate(url string) error {
	pg := p.page.Timeout(p.cfg.NavigationTimeout)
	defer pg.CancelTimeout()

	if err := pg.Navigate(url); err != nil {
		return errors.Wrapf(err, "browser: navigate %s", url)
	}
	if err := pg.WaitLoad(); err != nil {
		return errors.Wrapf(err, "browser: wait load %s", url)
	}
	return nil
}

func (p *rodPage) FindAll(sel Selector) ([]Element, error) {
	var (
		els rod.Elements
		err error
	)
	switch sel.Kind {
	case XPath:
		els, err = p.page.ElementsX(sel.Expr)
	default:
		els, err = p.page.Elements(sel.Expr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "browser: find %s", sel)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, timeout: p.cfg.ActionTimeout})
	}
	return out, nil
}

func (p *rodPage) BodyText() (string, error) {
	res, err := p.page.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", errors.Wrap(err, "browser: read body text")
	}
	return res.Value.Str(), nil
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", errors.Wrap(err, "browser: page info")
	}
	return info.URL, nil
}

func (p *rodPage) Close() error {
	var errs error
	if err := p.page.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "browser: close page"))
	}
	if err := p.browser.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "browser: close browser"))
	}
	if p.launcher != nil {
		p.launcher.Kill()
		p.launcher.Cleanup()
	}
	return errs
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func (e *rodElement) Visible() (bool, error) {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()
	return el.Visible()
}

func (e *rodElement) Click() error {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Clear() error {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()
	_, err := el.Eval(`() => {
		this.value = "";
		this.dispatchEvent(new Event("input", { bubbles: true }));
	}`)
	return err
}

func (e *rodElement) Type(text string) error {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()
	return el.Input(text)
}

func (e *rodElement) Checked() (bool, error) {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()
	v, err := el.Property("checked")
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

var _ Launcher = (*RodLauncher)(nil)
