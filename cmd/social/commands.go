package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/app"
	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/present"
	"github.com/and161185/sociallink/internal/session"
	"github.com/and161185/sociallink/internal/synccache"
)

var errUsage = errors.New("usage")

// cli carries what every command needs.
type cli struct {
	app *app.App
	in  *bufio.Reader
	out io.Writer
	loc *time.Location
	now func() time.Time
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return c.register(ctx, args)
	case "login":
		return c.login(ctx, args)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "reset-password":
		return c.resetPassword(ctx, args)
	case "reset-confirm":
		return c.resetConfirm(ctx, args)
	case "profiles":
		return c.profiles(ctx, args)
	case "profile":
		return c.profile(ctx, args)
	case "edit-profile":
		return c.editProfile(ctx, args)
	case "avatar":
		return c.avatar(ctx, args)
	case "chats":
		return c.chats(ctx)
	case "chat-with":
		return c.chatWith(ctx, args)
	case "open":
		return c.open(ctx, args)
	case "send":
		return c.send(ctx, args)
	case "posts":
		return c.posts(ctx)
	case "post":
		return c.post(ctx, args)
	case "like":
		return c.like(ctx, args)
	case "comment":
		return c.comment(ctx, args)
	case "comments":
		return c.comments(ctx, args)
	case "watch-chats":
		return c.watchChats(ctx)
	case "watch-posts":
		return c.watchPosts(ctx)
	default:
		return errUsage
	}
}

// session restores the signed-in user from the token file.
func (c *cli) session(ctx context.Context) (model.Session, error) {
	tok, err := loadToken()
	if err != nil {
		return model.Session{}, err
	}
	return c.app.Auth.SessionFromToken(ctx, tok)
}

func parseUUIDFlag(name, v string) (u.UUID, error) {
	if v == "" {
		return u.Nil, fmt.Errorf("need -%s", name)
	}
	id, err := u.FromString(v)
	if err != nil {
		return u.Nil, fmt.Errorf("-%s: %w", name, err)
	}
	return id, nil
}

// ---- account ----

func (c *cli) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "email")
	username := fs.String("username", "", "username")
	p := fs.String("p", "", "password (prompted when empty)")
	_ = fs.Parse(args)

	form := model.RegisterForm{Email: *email, Username: *username, Password: *p, ConfirmPassword: *p}
	if *p == "" {
		var err error
		if form.Password, err = promptPassword(c.in, c.out, "Password: "); err != nil {
			return err
		}
		if form.ConfirmPassword, err = promptPassword(c.in, c.out, "Confirm password: "); err != nil {
			return err
		}
	}
	uid, err := c.app.Auth.SignUp(ctx, form)
	if err != nil {
		if uid != u.Nil {
			fmt.Fprintf(c.out, "account %s created, but its profile was not: %s\n", uid, describe(err))
			return nil
		}
		return err
	}
	fmt.Fprintln(c.out, uid)
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "email")
	p := fs.String("p", "", "password (prompted when empty)")
	ip := fs.String("ip", "local", "client address used for rate limiting")
	_ = fs.Parse(args)

	pw := *p
	if pw == "" {
		var err error
		if pw, err = promptPassword(c.in, c.out, "Password: "); err != nil {
			return err
		}
	}
	sess, err := c.app.Auth.SignIn(ctx, *email, pw, *ip)
	if err != nil {
		return err
	}
	if err := saveToken(sess.AccessToken, sess.ExpiresAt, sess.UserID); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "ok")
	return nil
}

func (c *cli) logout(ctx context.Context) error {
	sess, err := c.session(ctx)
	if err == nil {
		err = c.app.Auth.SignOut(ctx, sess)
	}
	if rmErr := removeToken(); rmErr != nil {
		return rmErr
	}
	if err != nil && !errors.Is(err, errLoginRequired) {
		return err
	}
	fmt.Fprintln(c.out, "ok")
	return nil
}

func (c *cli) whoami(ctx context.Context) error {
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	p, err := c.app.Profile.Get(ctx, sess.UserID)
	if err != nil {
		return err
	}
	printJSON(c.out, struct {
		Email   string         `json:"email"`
		Expires time.Time      `json:"expires_at"`
		Profile *model.Profile `json:"profile"`
	}{sess.Email, sess.ExpiresAt, p})
	return nil
}

func (c *cli) resetPassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	email := fs.String("email", "", "email")
	_ = fs.Parse(args)
	if err := c.app.Auth.RequestPasswordReset(ctx, *email); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "if the account exists, a reset token has been sent")
	return nil
}

func (c *cli) resetConfirm(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset-confirm", flag.ExitOnError)
	token := fs.String("token", "", "reset token")
	p := fs.String("p", "", "new password (prompted when empty)")
	_ = fs.Parse(args)

	pw, confirm := *p, *p
	if pw == "" {
		var err error
		if pw, err = promptPassword(c.in, c.out, "New password: "); err != nil {
			return err
		}
		if confirm, err = promptPassword(c.in, c.out, "Confirm password: "); err != nil {
			return err
		}
	}
	if err := c.app.Auth.ResetPassword(ctx, *token, pw, confirm); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "password updated")
	return nil
}

// ---- profiles ----

func (c *cli) profiles(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profiles", flag.ExitOnError)
	q := fs.String("q", "", "username fragment")
	_ = fs.Parse(args)

	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	list, err := c.app.Profile.Explore(ctx, sess.UserID, *q)
	if err != nil {
		return err
	}
	for _, p := range list {
		fmt.Fprintf(c.out, "%s  %s\n", p.ID, participantName(p))
	}
	return nil
}

func (c *cli) profile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	id := fs.String("id", "", "profile id (defaults to self)")
	_ = fs.Parse(args)

	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	target := sess.UserID
	if *id != "" {
		if target, err = parseUUIDFlag("id", *id); err != nil {
			return err
		}
	}
	p, err := c.app.Profile.Get(ctx, target)
	if err != nil {
		return err
	}
	printJSON(c.out, p)
	return nil
}

func (c *cli) editProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit-profile", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	username := fs.String("username", "", "username")
	bio := fs.String("bio", "", "bio")
	website := fs.String("website", "", "website URL")
	location := fs.String("location", "", "location")
	_ = fs.Parse(args)

	var upd model.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			upd.Name = name
		case "username":
			upd.Username = username
		case "bio":
			upd.Bio = bio
		case "website":
			upd.Website = website
		case "location":
			upd.Location = location
		}
	})

	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	p, err := c.app.Profile.Update(ctx, sess.UserID, upd)
	if err != nil {
		return err
	}
	printJSON(c.out, p)
	return nil
}

// contentType picks the media type from the extension, falling back to sniffing.
func contentType(path string, head []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return http.DetectContentType(head)
}

func (c *cli) avatar(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("avatar", flag.ExitOnError)
	file := fs.String("file", "", "image file")
	typ := fs.String("type", "", "content type (detected when empty)")
	_ = fs.Parse(args)
	if *file == "" {
		return errors.New("need -file")
	}

	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	ct := *typ
	if ct == "" {
		head, _ := br.Peek(512)
		ct = contentType(*file, head)
	}
	url, err := c.app.Profile.ChangeAvatar(ctx, sess.UserID, ct, br)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, url)
	return nil
}

// ---- chats ----

func (c *cli) chatCache(sess model.Session) *synccache.ChatCache {
	return synccache.NewChatCache(sess.UserID, c.app.Chats, c.app.Messages, c.app.Summaries, c.app.Log)
}

func (c *cli) chats(ctx context.Context) error {
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	cc := c.chatCache(sess)
	if err := cc.LoadChats(ctx, sess.UserID); err != nil {
		return err
	}
	renderChats(c.out, cc.Chats(), sess.UserID, c.loc)
	return nil
}

func (c *cli) chatWith(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat-with", flag.ExitOnError)
	user := fs.String("user", "", "profile id of the other participant")
	_ = fs.Parse(args)

	target, err := parseUUIDFlag("user", *user)
	if err != nil {
		return err
	}
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	cc := c.chatCache(sess)
	if err := cc.LoadChats(ctx, sess.UserID); err != nil {
		return err
	}
	it, err := cc.CreateChat(ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s  %s\n", it.ChatID, participantName(it.Participant))
	return nil
}

func (c *cli) send(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	chat := fs.String("chat", "", "chat id")
	text := fs.String("text", "", "message text")
	_ = fs.Parse(args)

	chatID, err := parseUUIDFlag("chat", *chat)
	if err != nil {
		return err
	}
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	cc := c.chatCache(sess)
	if err := cc.LoadChats(ctx, sess.UserID); err != nil {
		return err
	}
	if !cc.Has(chatID) {
		return fmt.Errorf("chat %s is not one of yours", chatID)
	}
	tr := synccache.NewTranscript(chatID, sess.UserID, c.app.Messages, c.app.Log)
	m, err := tr.SendMessage(ctx, *text)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s\n", m.ID, present.ReceiptFor(m, sess.UserID))
	return nil
}

// errFeedStopped ends a live view whose change feed went away.
var errFeedStopped = errors.New("live updates stopped")

// changeSignal coalesces session changes into a single pending wake-up and
// reports a stopped feed on its own channel.
type changeSignal struct {
	wake    chan struct{}
	stopped chan error
}

func newChangeSignal() (changeSignal, session.Option) {
	sig := changeSignal{wake: make(chan struct{}, 1), stopped: make(chan error, 1)}
	return sig, session.WithOnChange(sig.handle)
}

func (sig changeSignal) handle(ch session.Change) {
	if ch.Kind == session.FeedStopped {
		err := errFeedStopped
		if ch.Err != nil {
			err = fmt.Errorf("%w: %v", errFeedStopped, ch.Err)
		}
		select {
		case sig.stopped <- err:
		default:
		}
		return
	}
	select {
	case sig.wake <- struct{}{}:
	default:
	}
}

func (c *cli) open(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	chat := fs.String("chat", "", "chat id")
	_ = fs.Parse(args)

	chatID, err := parseUUIDFlag("chat", *chat)
	if err != nil {
		return err
	}
	auth, err := c.session(ctx)
	if err != nil {
		return err
	}
	sig, opt := newChangeSignal()
	s, err := c.app.StartSession(ctx, auth, opt)
	if err != nil {
		return err
	}
	defer s.End()

	v, err := s.OpenChat(ctx, chatID)
	if err != nil {
		return err
	}
	defer v.Close()

	for _, it := range s.Chats.Chats() {
		if it.ChatID == chatID {
			fmt.Fprintf(c.out, "chat with %s (Ctrl-C to leave)\n", participantName(it.Participant))
		}
	}
	t := newTail(auth.UserID, c.loc, c.now)
	t.update(c.out, v.Messages())

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := readLine(c.in)
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sig.stopped:
			return err
		case <-sig.wake:
			t.update(c.out, v.Messages())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := v.SendMessage(ctx, line); err != nil {
				fmt.Fprintln(c.out, describe(err))
				continue
			}
			t.update(c.out, v.Messages())
		}
	}
}

func (c *cli) watchChats(ctx context.Context) error {
	auth, err := c.session(ctx)
	if err != nil {
		return err
	}
	sig, opt := newChangeSignal()
	s, err := c.app.StartSession(ctx, auth, opt)
	if err != nil {
		return err
	}
	defer s.End()

	renderChats(c.out, s.Chats.Chats(), auth.UserID, c.loc)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sig.stopped:
			return err
		case <-sig.wake:
			fmt.Fprintln(c.out, "──")
			renderChats(c.out, s.Chats.Chats(), auth.UserID, c.loc)
		}
	}
}

// ---- posts ----

func (c *cli) postCache(sess model.Session) *synccache.PostCache {
	return synccache.NewPostCache(sess.UserID, c.app.Posts, c.app.Log)
}

func (c *cli) posts(ctx context.Context) error {
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	pc := c.postCache(sess)
	if err := pc.LoadPosts(ctx); err != nil {
		return err
	}
	renderPosts(c.out, pc.Posts(), c.now(), c.loc)
	return nil
}

func (c *cli) post(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	content := fs.String("content", "", "post text")
	media := fs.String("media", "", "media URL")
	typ := fs.String("type", "", "image, video or text (derived from -media when empty)")
	_ = fs.Parse(args)

	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	pt := model.PostType(*typ)
	if pt == "" {
		pt = present.ClassifyMedia(*media)
	}
	var mediaURL *string
	if *media != "" {
		mediaURL = media
	}
	p, err := c.postCache(sess).CreatePost(ctx, pt, *content, mediaURL)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, p.ID)
	return nil
}

func (c *cli) like(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("like", flag.ExitOnError)
	post := fs.String("post", "", "post id")
	_ = fs.Parse(args)

	postID, err := parseUUIDFlag("post", *post)
	if err != nil {
		return err
	}
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	liked, err := c.postCache(sess).ToggleLike(ctx, postID)
	if err != nil {
		return err
	}
	if liked {
		fmt.Fprintln(c.out, "liked")
	} else {
		fmt.Fprintln(c.out, "unliked")
	}
	return nil
}

func (c *cli) comment(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	post := fs.String("post", "", "post id")
	text := fs.String("text", "", "comment text")
	parent := fs.String("parent", "", "comment id to reply to")
	_ = fs.Parse(args)

	postID, err := parseUUIDFlag("post", *post)
	if err != nil {
		return err
	}
	var parentID *u.UUID
	if *parent != "" {
		id, err := parseUUIDFlag("parent", *parent)
		if err != nil {
			return err
		}
		parentID = &id
	}
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	cm, err := c.postCache(sess).CommentPost(ctx, postID, *text, parentID)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, cm.ID)
	return nil
}

func (c *cli) comments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("comments", flag.ExitOnError)
	post := fs.String("post", "", "post id")
	_ = fs.Parse(args)

	postID, err := parseUUIDFlag("post", *post)
	if err != nil {
		return err
	}
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	list, err := c.postCache(sess).Comments(ctx, postID)
	if err != nil {
		return err
	}
	renderComments(c.out, list, c.loc)
	return nil
}

func (c *cli) watchPosts(ctx context.Context) error {
	auth, err := c.session(ctx)
	if err != nil {
		return err
	}
	sig, opt := newChangeSignal()
	s, err := c.app.StartSession(ctx, auth, opt)
	if err != nil {
		return err
	}
	defer s.End()

	renderPosts(c.out, s.Posts.Posts(), c.now(), c.loc)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sig.stopped:
			return err
		case <-sig.wake:
			fmt.Fprintln(c.out, "──")
			renderPosts(c.out, s.Posts.Posts(), c.now(), c.loc)
		}
	}
}
