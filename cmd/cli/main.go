// Command newsctl is a CLI client for the anti-fake-news service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/crowdcheck/newsclient/internal/config"
	"github.com/crowdcheck/newsclient/internal/limiter"
	"github.com/crowdcheck/newsclient/internal/model"
	"github.com/crowdcheck/newsclient/internal/news"
	"github.com/crowdcheck/newsclient/internal/session"
	"github.com/crowdcheck/newsclient/internal/storage"
	"github.com/crowdcheck/newsclient/internal/transport"
	"github.com/crowdcheck/newsclient/internal/users"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type app struct {
	sess  *session.Manager
	news  *news.Store
	users *users.Store
	close func()
}

func usage() {
	fmt.Fprintf(os.Stderr, `newsctl
Usage:
  newsctl [-base URL] [-debug] <cmd> [args]

Commands:
  version
  register  -u <username> -p <password> -first <name> -last <name> -email <addr> [-image url]
  login     -u <identifier> -p <password>        (saves session)
  logout
  whoami
  forgot    -email <addr>
  news      [-status all|fake|not-fake|equal]
  get       -id <id>
  add       -topic T -short S -full F [-image url] [-reporter name]
  rm        -id <id>
  removed
  search    [-title T] [-status S] [-page N] [-limit N] [-include-removed]
  comment   -id <id> -text <text> -vote real|fake [-image url]
  rmcomment -id <commentID> -news <newsID>
  summary   -id <id>
  users
  promote   -id <userID>
  demote    -id <userID>
`)
	os.Exit(2)
}

func fail(err error) {
	if msg := transport.ServerMessage(err); msg != "" {
		fmt.Fprintf(os.Stderr, "error: %s (%v)\n", msg, err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func openStorage(cfg config.Config) (storage.Storage, func()) {
	store, closeStore := openBackend(cfg)
	if cfg.Passphrase == "" {
		return store, closeStore
	}
	sealed, err := storage.NewSealed(store, cfg.Passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: session encryption unavailable (%v), session will not persist\n", err)
		closeStore()
		return storage.NewMemory(), func() {}
	}
	return sealed, closeStore
}

func openBackend(cfg config.Config) (storage.Storage, func()) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemory(), func() {}
	case "pebble":
		path := cfg.StoragePath
		if path == "" {
			path = filepath.Join(filepath.Dir(storage.DefaultPath()), "session.pebble")
		}
		db, err := storage.OpenPebble(path)
		if err != nil {
			// Degrade to a memory-only session rather than failing the run.
			fmt.Fprintf(os.Stderr, "warning: pebble storage unavailable (%v), session will not persist\n", err)
			return storage.NewMemory(), func() {}
		}
		return db, func() { _ = db.Close() }
	default:
		path := cfg.StoragePath
		if path == "" {
			path = storage.DefaultPath()
		}
		return storage.NewFile(path), func() {}
	}
}

func buildApp(base string, debug bool) *app {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	if base != "" {
		cfg.BaseURL = base
	}
	if debug {
		cfg.Debug = true
	}

	logger := zap.NewNop()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}

	store, closeStore := openStorage(cfg)
	client := transport.New(cfg.BaseURL, cfg.Timeout, logger)
	sess := session.NewManager(client, store, logger)
	sess.SetLimiter(limiter.NewMemory())
	client.Use(transport.BearerInterceptor(sess, session.StorageTokenSource{Store: store}))

	return &app{
		sess:  sess,
		news:  news.NewStore(client, logger),
		users: users.NewStore(client, logger),
		close: closeStore,
	}
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// main dispatches subcommands over the session manager and domain stores.
func main() {
	base := flag.String("base", "", "service base URL (overrides env)")
	debug := flag.Bool("debug", false, "request-level logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("newsctl %s (%s)\n", version, buildDate)
		return
	}

	a := buildApp(*base, *debug)
	defer a.close()

	ctx, cancel := withTimeout()
	defer cancel()

	switch cmd {
	case "register":
		cmdRegister(ctx, a, args)
	case "login":
		cmdLogin(ctx, a, args)
	case "logout":
		a.sess.Logout()
		fmt.Println("ok")
	case "whoami":
		cmdWhoami(a)
	case "forgot":
		cmdForgot(ctx, a, args)
	case "news":
		cmdNews(ctx, a, args)
	case "get":
		cmdGet(ctx, a, args)
	case "add":
		cmdAdd(ctx, a, args)
	case "rm":
		cmdRemove(ctx, a, args)
	case "removed":
		cmdRemoved(ctx, a)
	case "search":
		cmdSearch(ctx, a, args)
	case "comment":
		cmdComment(ctx, a, args)
	case "rmcomment":
		cmdDeleteComment(ctx, a, args)
	case "summary":
		cmdSummary(ctx, a, args)
	case "users":
		cmdUsers(ctx, a)
	case "promote":
		cmdChangeRole(ctx, a, args, true)
	case "demote":
		cmdChangeRole(ctx, a, args, false)
	default:
		usage()
	}
}

func cmdRegister(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email")
	image := fs.String("image", "", "profile image URL")
	_ = fs.Parse(args)
	if *u == "" || *p == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "need -u, -p and -email")
		os.Exit(1)
	}

	if a.sess.CheckUsernameExists(ctx, *u) {
		fmt.Fprintln(os.Stderr, "username is taken (or could not be verified)")
		os.Exit(1)
	}
	if a.sess.CheckEmailExists(ctx, *email) {
		fmt.Fprintln(os.Stderr, "email is taken (or could not be verified)")
		os.Exit(1)
	}

	err := a.sess.Register(ctx, model.RegisterPayload{
		Username:     *u,
		Password:     *p,
		Firstname:    *first,
		Lastname:     *last,
		Email:        *email,
		ProfileImage: *image,
	})
	if err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdLogin(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	u := fs.String("u", "", "username or email")
	p := fs.String("p", "", "password")
	_ = fs.Parse(args)
	if *u == "" || *p == "" {
		fmt.Fprintln(os.Stderr, "need -u and -p")
		os.Exit(1)
	}

	if _, err := a.sess.Login(ctx, *u, *p); err != nil {
		fail(err)
	}
	fmt.Printf("logged in as %s\n", a.sess.CurrentUserName())
}

func cmdWhoami(a *app) {
	if !a.sess.IsAuthenticated() {
		fmt.Println("not logged in")
		return
	}
	fmt.Println(a.sess.CurrentUserName())
	fmt.Printf("roles: %v\n", a.sess.Roles())
	if exp, ok := a.sess.TokenExpiry(); ok {
		fmt.Printf("token expires: %s\n", exp.UTC().Format(time.RFC3339))
	}
}

func cmdForgot(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("forgot", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	_ = fs.Parse(args)
	if *email == "" {
		fmt.Fprintln(os.Stderr, "need -email")
		os.Exit(1)
	}
	if err := a.sess.ForgotPassword(ctx, *email); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdNews(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("news", flag.ExitOnError)
	status := fs.String("status", "all", "all|fake|not-fake|equal")
	_ = fs.Parse(args)

	if err := a.news.FetchNews(ctx); err != nil {
		fail(err)
	}
	printJSON(a.news.NewsWithStatus(model.Status(*status)))
}

func cmdGet(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	id := fs.Int64("id", 0, "news id")
	_ = fs.Parse(args)
	if *id == 0 {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}

	item, err := a.news.FetchNewsByID(ctx, *id)
	if err != nil {
		fail(err)
	}
	printJSON(item)
}

func cmdAdd(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	topic := fs.String("topic", "", "topic")
	short := fs.String("short", "", "short detail")
	full := fs.String("full", "", "full detail")
	image := fs.String("image", "", "image URL")
	reporter := fs.String("reporter", "", "reporter (defaults to current user)")
	_ = fs.Parse(args)
	if *topic == "" || *short == "" || *full == "" {
		fmt.Fprintln(os.Stderr, "need -topic, -short and -full")
		os.Exit(1)
	}

	// Submitting news is gated the same way the add-news route is.
	if d := a.sess.Authorize(model.RoleMember, model.RoleAdmin); !d.Allowed {
		fmt.Fprintf(os.Stderr, "access denied: members only (signal=%s)\n", d.Signal)
		os.Exit(1)
	}

	rep := *reporter
	if rep == "" {
		rep = a.sess.CurrentUserName()
	}
	created, err := a.news.CreateNews(ctx, model.CreateNewsPayload{
		Topic:       *topic,
		ShortDetail: *short,
		FullDetail:  *full,
		Image:       *image,
		Reporter:    rep,
		DateTime:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		fail(err)
	}
	if created == nil {
		// Server confirmed without a body; state came from the re-sync.
		fmt.Println("ok")
		return
	}
	printJSON(created)
}

func cmdRemove(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	id := fs.Int64("id", 0, "news id")
	_ = fs.Parse(args)
	if *id == 0 {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}
	if err := a.news.RemoveNews(ctx, *id); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdRemoved(ctx context.Context, a *app) {
	if err := a.news.FetchRemovedNews(ctx); err != nil {
		fail(err)
	}
	printJSON(a.news.Removed())
}

func cmdSearch(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	title := fs.String("title", "", "title filter")
	status := fs.String("status", "", "status filter")
	page := fs.Int("page", 0, "page")
	limit := fs.Int("limit", 0, "page size")
	includeRemoved := fs.Bool("include-removed", false, "include removed items")
	_ = fs.Parse(args)

	items, err := a.news.SearchNews(ctx, news.SearchParams{
		Title:          *title,
		Status:         *status,
		Page:           *page,
		Limit:          *limit,
		IncludeRemoved: *includeRemoved,
	})
	if err != nil {
		fail(err)
	}
	printJSON(items)
}

func cmdComment(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	id := fs.Int64("id", 0, "news id")
	text := fs.String("text", "", "comment text")
	vote := fs.String("vote", "", "real|fake")
	image := fs.String("image", "", "image URL")
	_ = fs.Parse(args)
	if *id == 0 || *text == "" || (*vote != string(model.VoteReal) && *vote != string(model.VoteFake)) {
		fmt.Fprintln(os.Stderr, "need -id, -text and -vote real|fake")
		os.Exit(1)
	}

	res := a.news.SubmitComment(ctx, *id, news.CommentData{
		Username: a.sess.CurrentUserName(),
		Text:     *text,
		Image:    *image,
		Vote:     model.Vote(*vote),
	})
	if !res.Success {
		fmt.Fprintln(os.Stderr, res.Error)
		os.Exit(1)
	}
	if item, ok := a.news.Current(); ok {
		printJSON(item)
		return
	}
	fmt.Println("ok")
}

func cmdDeleteComment(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("rmcomment", flag.ExitOnError)
	id := fs.Int64("id", 0, "comment id")
	newsID := fs.Int64("news", 0, "news id")
	_ = fs.Parse(args)
	if *id == 0 || *newsID == 0 {
		fmt.Fprintln(os.Stderr, "need -id and -news")
		os.Exit(1)
	}
	if err := a.news.DeleteComment(ctx, *id, *newsID); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdSummary(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	id := fs.Int64("id", 0, "news id")
	_ = fs.Parse(args)
	if *id == 0 {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}
	summary, err := a.news.GetVoteSummary(ctx, *id)
	if err != nil {
		fail(err)
	}
	fmt.Printf("real=%d fake=%d status=%s\n", summary.Real, summary.Fake, model.DeriveStatus(summary.Real, summary.Fake))
}

func cmdUsers(ctx context.Context, a *app) {
	if d := a.sess.Authorize(model.RoleAdmin); !d.Allowed {
		fmt.Fprintf(os.Stderr, "access denied: admins only (signal=%s)\n", d.Signal)
		os.Exit(1)
	}
	if err := a.users.FetchAll(ctx); err != nil {
		fail(err)
	}
	printJSON(a.users.Users())
}

func cmdChangeRole(ctx context.Context, a *app, args []string, promote bool) {
	fs := flag.NewFlagSet("role", flag.ExitOnError)
	id := fs.Int64("id", 0, "user id")
	_ = fs.Parse(args)
	if *id == 0 {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}
	if d := a.sess.Authorize(model.RoleAdmin); !d.Allowed {
		fmt.Fprintf(os.Stderr, "access denied: admins only (signal=%s)\n", d.Signal)
		os.Exit(1)
	}

	// FetchAll first so the updated record can be spliced into the listing.
	if err := a.users.FetchAll(ctx); err != nil {
		fail(err)
	}
	var err error
	if promote {
		err = a.users.Promote(ctx, *id)
	} else {
		err = a.users.Demote(ctx, *id)
	}
	if err != nil {
		fail(err)
	}
	if msg := a.users.Message(); msg != "" {
		fmt.Println(msg)
	} else {
		fmt.Println("ok")
	}
}
