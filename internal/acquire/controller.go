package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sheetfetch/internal/catalog"
	"sheetfetch/internal/files"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/progress"
	"sheetfetch/internal/selection"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
	"sheetfetch/internal/transpose"
)

var (
	ErrKeyNotResolved        = errors.New("key not resolved")
	ErrNoPartsFound          = errors.New("no parts found")
	ErrInstrumentNotResolved = errors.New("instrument not resolved")
	ErrNoPages               = errors.New("no pages downloaded")
	ErrNoCandidate           = errors.New("no candidate chosen")
)

// Options bounds pagination.
type Options struct {
	// MaxPages stops a part's download after this many pages.
	MaxPages int
	// PaginationRetries is how often a timed out NextPage is retried.
	PaginationRetries int
}

func (o Options) withDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = 200
	}
	if o.PaginationRetries < 0 {
		o.PaginationRetries = 0
	}
	return o
}

// Resolution is the outcome of key negotiation.
type Resolution struct {
	Instrument string
	Key        string
	// Substituted is set when a transposition suggestion replaced the
	// requested instrument.
	Substituted bool
}

// Controller drives one catalog session through the acquisition lifecycle.
// It is not safe for concurrent use; the caller sequences its steps.
type Controller struct {
	client   catalog.Client
	selector selection.Selector
	files    *files.Manager
	opts     Options
	logger   *slog.Logger
	machine  *Machine

	rawParts []string
	// seen holds every page URL fetched since the last Search.
	seen map[string]struct{}
}

// NewController builds a controller. client is normally a catalog.Session so
// every call is serialized under the session lock.
func NewController(client catalog.Client, selector selection.Selector, fm *files.Manager, opts Options, logger *slog.Logger) *Controller {
	if selector == nil {
		selector = selection.First{}
	}
	if fm == nil {
		fm = files.NewManager(nil, logger)
	}
	return &Controller{
		client:   client,
		selector: selector,
		files:    fm,
		opts:     opts.withDefaults(),
		logger:   logging.NewComponentLogger(logger, "acquire"),
		machine:  NewMachine(),
	}
}

// Machine exposes the state machine for inspection.
func (c *Controller) Machine() *Machine { return c.machine }

func (c *Controller) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, c.logger)
}

// fail records reason and returns err. Transition errors are logged only: the
// step error is what the caller acts on.
func (c *Controller) fail(ctx context.Context, reason Reason, err error) error {
	if terr := c.machine.Fail(reason); terr != nil {
		c.log(ctx).Debug("state transition rejected", logging.Error(terr))
	}
	return err
}

// Search resets the machine and searches query. Zero results finish the
// machine with ReasonNoResults and are not an error.
func (c *Controller) Search(ctx context.Context, query string, sink progress.Sink) ([]sheet.Candidate, error) {
	sink = progress.OrNop(sink)
	c.machine.Reset()
	c.rawParts = nil
	c.seen = make(map[string]struct{})
	if err := c.machine.Transition(StateSearching); err != nil {
		return nil, err
	}
	ctx = services.WithStage(ctx, "search")
	sink.Status(fmt.Sprintf("Searching for %s", query))
	sink.Progress(0)

	candidates, err := c.client.Search(ctx, query)
	if err != nil {
		return nil, c.fail(ctx, ReasonSessionError, err)
	}
	sink.Progress(100)
	if len(candidates) == 0 {
		sink.Log(fmt.Sprintf("No results for %s", query))
		c.log(ctx).Info("search returned no songs", logging.String("query", query))
		_ = c.machine.Finish(ReasonNoResults)
		return nil, nil
	}
	sink.Log(fmt.Sprintf("Found %d songs for search: %s", len(candidates), query))
	c.log(ctx).Info("search complete",
		logging.String("query", query),
		logging.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// Choose asks the selector for one of candidates.
func (c *Controller) Choose(ctx context.Context, title string, candidates []sheet.Candidate) (sheet.Candidate, error) {
	if len(candidates) == 0 {
		return sheet.Candidate{}, ErrNoCandidate
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	options := make([]string, len(candidates))
	for i, candidate := range candidates {
		options[i] = candidate.Label()
	}
	idx, err := c.selector.Select(ctx, selection.Request{
		Kind:    selection.KindCandidate,
		Title:   "Select Song",
		Message: fmt.Sprintf("Select version for %s", title),
		Options: options,
	})
	if err != nil {
		return sheet.Candidate{}, selectionError("choose candidate", ErrNoCandidate, err)
	}
	return candidates[idx], nil
}

// Select opens candidate and returns the offered keys, the first being the
// catalog default.
func (c *Controller) Select(ctx context.Context, candidate sheet.Candidate, sink progress.Sink) ([]string, error) {
	sink = progress.OrNop(sink)
	ctx = services.WithStage(services.WithCandidate(ctx, candidate.Index), "select")
	sink.Log(fmt.Sprintf("Selected song: %s", candidate.Title))

	keys, err := c.client.SelectCandidate(ctx, candidate)
	if err != nil {
		if errors.Is(err, catalog.ErrOrchestrationNotFound) {
			sink.Log("Orchestration not found for this song.")
			return nil, c.fail(ctx, ReasonOrchestrationNotFound, err)
		}
		return nil, c.fail(ctx, ReasonSessionError, err)
	}
	if err := c.machine.Transition(StateSongSelected); err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		sink.Log(fmt.Sprintf("Automatically selected key: %s", keys[0]))
	}
	c.log(ctx).Info("candidate selected",
		logging.String("candidate", candidate.Label()),
		logging.Any("keys", keys),
	)
	return keys, nil
}

// Negotiate resolves the requested key against the offered keys. An exact
// match (after key normalization) is used directly. Otherwise the operator is
// offered the plain keys for the requested instrument followed by the
// transposition suggestions. The chosen key is selected in the session.
func (c *Controller) Negotiate(ctx context.Context, keys []string, instrument, key string, sink progress.Sink) (Resolution, error) {
	sink = progress.OrNop(sink)
	ctx = services.WithStage(ctx, "negotiate")

	res, err := c.negotiate(ctx, keys, instrument, key)
	if err != nil {
		return Resolution{}, c.fail(ctx, ReasonKeyNotResolved, err)
	}
	raw, err := c.client.SelectKey(ctx, res.Key)
	if err != nil {
		return Resolution{}, c.fail(ctx, ReasonSessionError, err)
	}
	if err := c.machine.Transition(StateKeyNegotiated); err != nil {
		return Resolution{}, err
	}
	c.rawParts = raw
	sink.Log(fmt.Sprintf("Selected key: %s", res.Key))
	c.log(ctx).Info("key negotiated",
		logging.String("requested_key", key),
		logging.Key(res.Key),
		logging.Instrument(res.Instrument),
		logging.Bool("substituted", res.Substituted),
	)
	return res, nil
}

func (c *Controller) negotiate(ctx context.Context, keys []string, instrument, key string) (Resolution, error) {
	want := transpose.NormalizeKey(key)
	for _, offered := range keys {
		if want != "" && transpose.NormalizeKey(offered) == want {
			return Resolution{Instrument: instrument, Key: offered}, nil
		}
	}
	if len(keys) == 0 {
		return Resolution{}, services.Wrap(services.ErrNotFound, "acquire", "negotiate key", "no keys offered", ErrKeyNotResolved)
	}

	options := make([]string, 0, len(keys))
	resolutions := make([]Resolution, 0, len(keys))
	for _, offered := range keys {
		options = append(options, fmt.Sprintf("%s in %s", instrument, offered))
		resolutions = append(resolutions, Resolution{Instrument: instrument, Key: offered})
	}
	for _, s := range transpose.ComputeSuggestions(keys, instrument, key).All() {
		options = append(options, s.Label())
		resolutions = append(resolutions, Resolution{Instrument: s.Instrument, Key: s.Key, Substituted: true})
	}

	idx, err := c.selector.Select(ctx, selection.Request{
		Kind:    selection.KindKey,
		Title:   "Select Key",
		Message: fmt.Sprintf("Requested key '%s' not found for %s. Choose an alternative:", key, instrument),
		Options: options,
	})
	if err != nil {
		return Resolution{}, selectionError("negotiate key", ErrKeyNotResolved, err)
	}
	return resolutions[idx], nil
}

// Parts filters the part menu reported by the negotiated key.
func (c *Controller) Parts(ctx context.Context, sink progress.Sink) ([]string, error) {
	sink = progress.OrNop(sink)
	ctx = services.WithStage(ctx, "parts")
	parts := catalog.FilterParts(c.rawParts)
	if len(parts) == 0 {
		sink.Log("No parts menu found.")
		return nil, c.fail(ctx, ReasonNoPartsFound,
			services.Wrap(services.ErrNotFound, "acquire", "enumerate parts", "", ErrNoPartsFound))
	}
	if err := c.machine.Transition(StatePartsEnumerated); err != nil {
		return nil, err
	}
	c.log(ctx).Debug("parts enumerated", logging.Any("parts", parts))
	return parts, nil
}

// ResolveInstrument finds requested among parts with the loose label match,
// asking the operator when it is absent.
func (c *Controller) ResolveInstrument(ctx context.Context, parts []string, requested string) (string, error) {
	if part, ok := catalog.MatchInstrument(parts, requested); ok {
		return part, nil
	}
	idx, err := c.selector.Select(ctx, selection.Request{
		Kind:    selection.KindInstrument,
		Title:   "Select Instrument",
		Message: fmt.Sprintf("Instrument '%s' not found. Choose one:", requested),
		Options: parts,
	})
	if err != nil {
		return "", c.fail(ctx, ReasonInstrumentNotResolved,
			selectionError("resolve instrument", ErrInstrumentNotResolved, err))
	}
	return parts[idx], nil
}

// Finish marks the acquisition complete.
func (c *Controller) Finish() error {
	return c.machine.Finish(ReasonNone)
}

// Abandon fails the machine when the caller gives up on the candidate after
// a step that left it running, such as every part downloading zero pages.
func (c *Controller) Abandon(reason Reason) {
	_ = c.machine.Fail(reason)
}

// selectionError maps a selector failure. Context errors pass through;
// operator cancels carry services.ErrCanceled and sentinel.
func selectionError(op string, sentinel, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, selection.ErrCanceled) {
		return services.Wrap(services.ErrCanceled, "acquire", op, "", sentinel)
	}
	return services.Wrap(services.ErrValidation, "acquire", op, err.Error(), sentinel)
}
