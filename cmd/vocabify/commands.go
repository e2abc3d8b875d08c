package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/japaniel/vocabify/pkg/content"
	"github.com/japaniel/vocabify/pkg/page"
	"github.com/japaniel/vocabify/pkg/prefs"
	"github.com/japaniel/vocabify/pkg/vocabify"
	"github.com/japaniel/vocabify/pkg/wanikani"
)

func runSync(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.svc.SyncAndRecompute(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	m, err := a.st.Vocab.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Sync complete. %d words in vocabulary.\n", len(m.Lookup))
	return nil
}

func runTranslate(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	urlFlag := fs.String("url", "", "URL to translate")
	fileFlag := fs.String("file", "", "HTML file to translate")
	domainFlag := fs.String("domain", "", "Domain to apply site preferences for (default: the URL's host)")
	readable := fs.Bool("readable", false, "Keep only the main article")
	outFlag := fs.String("out", "", "Write HTML here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	src := *urlFlag
	if src == "" {
		src = *fileFlag
	}
	if src == "" || (*urlFlag != "" && *fileFlag != "") {
		return errors.New("translate: provide exactly one of -url or -file")
	}

	p, err := page.Load(ctx, page.NewFetcher(a.cfg.WaniKani.Timeout), src, *readable)
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	domain := p.Domain()
	if *domainFlag != "" {
		domain = strings.ToLower(*domainFlag)
	}

	c := content.New(a.st, p.Body(), domain, a.log)
	if err := c.Load(ctx); err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	a.log.Info("page translated", "source", src, "domain", domain, "markers", len(vocabify.Markers(p.Body())))

	if *outFlag == "" {
		return p.Render(stdout)
	}
	f, err := os.Create(*outFlag)
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	if err := p.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("translate: render: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s (%d words replaced).\n", *outFlag, len(vocabify.Markers(p.Body())))
	return nil
}

func runWatch(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	us, err := a.st.User.Get(ctx)
	if err != nil {
		return err
	}
	if us.LastUpdated == nil {
		if err := a.svc.OnInstall(ctx); err != nil {
			a.log.Warn("initial sync failed", "error", err)
		}
	}

	unbind := a.svc.Bind(ctx)
	defer unbind()
	fmt.Fprintln(stdout, "Watching for updates. Press Ctrl+C to stop.")
	return a.svc.Run(ctx, a.cfg.Alarms)
}

// optBool is a flag that records whether it was set.
type optBool struct {
	set bool
	val bool
}

func (o *optBool) String() string {
	if o == nil || !o.set {
		return ""
	}
	return strconv.FormatBool(o.val)
}

func (o *optBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	o.set, o.val = true, v
	return nil
}

func (o *optBool) IsBoolFlag() bool { return true }

func parseSubjectTypes(list string) (prefs.SubjectTypeSelection, error) {
	var sel prefs.SubjectTypeSelection
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t := wanikani.SubjectType(name)
		if !t.Valid() {
			return sel, fmt.Errorf("unknown subject type %q", name)
		}
		sel.Set(t, true)
	}
	return sel, nil
}

func runPrefs(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("prefs", flag.ContinueOnError)
	srsMin := fs.Int("srs-min", -1, "Exclusive lower SRS bound")
	srsMax := fs.Int("srs-max", -1, "Exclusive upper SRS bound")
	types := fs.String("types", "", "Comma-separated subject types to use (radical,kanji,vocabulary,kana_vocabulary)")
	var style, byDefault, synonyms optBool
	fs.Var(&style, "style", "Highlight replaced words")
	fs.Var(&byDefault, "translate-by-default", "Translate sites that are in neither list")
	fs.Var(&synonyms, "synonyms", "Also match your own meaning synonyms")
	always := fs.String("always", "", "Always translate this domain")
	never := fs.String("never", "", "Never translate this domain")
	forget := fs.String("forget", "", "Remove a domain from both lists")
	pause := fs.Duration("pause", 0, "Invert translate-by-default for this long")
	token := fs.String("token", "", "WaniKani API token (triggers a full sync)")
	clearToken := fs.Bool("clear-token", false, "Remove the stored API token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Preference writes trigger the same recompute and resync as the watcher.
	unbind := a.svc.Bind(ctx)
	defer unbind()

	if *srsMin >= 0 || *srsMax >= 0 {
		err := a.st.SRSRange.Update(ctx, func(r *prefs.SRSRange) {
			if *srsMin >= 0 {
				r.Min = *srsMin
			}
			if *srsMax >= 0 {
				r.Max = *srsMax
			}
		})
		if err != nil {
			return err
		}
	}
	if *types != "" {
		sel, err := parseSubjectTypes(*types)
		if err != nil {
			return err
		}
		if err := a.st.SubjectTypes.Set(ctx, sel); err != nil {
			return err
		}
	}
	if style.set {
		if err := a.st.Style.Set(ctx, style.val); err != nil {
			return err
		}
	}
	if synonyms.set {
		if err := a.st.IncludeSynonyms.Set(ctx, synonyms.val); err != nil {
			return err
		}
	}
	if *always != "" || *never != "" || *forget != "" {
		err := a.st.Domains.Update(ctx, func(d *prefs.DomainSettings) {
			if *forget != "" {
				d.Forget(*forget)
			}
			if *always != "" {
				d.AlwaysTranslate(*always)
			}
			if *never != "" {
				d.NeverTranslate(*never)
			}
		})
		if err != nil {
			return err
		}
	}
	if byDefault.set || *pause > 0 {
		err := a.st.Translation.Update(ctx, func(t *prefs.TranslationSettings) {
			if byDefault.set && t.TranslateByDefault != byDefault.val {
				t.ToggleTranslateByDefault()
			}
			if *pause > 0 {
				t.InvertUntil = time.Now().Add(*pause)
			}
		})
		if err != nil {
			return err
		}
	}
	if *clearToken {
		if err := a.st.APIToken.Reset(ctx); err != nil {
			return err
		}
	}
	if *token != "" {
		if err := a.st.APIToken.Set(ctx, *token); err != nil {
			return err
		}
	}
	return printPrefs(ctx, a, stdout)
}

func printPrefs(ctx context.Context, a *app, stdout io.Writer) error {
	sel, err := a.st.SubjectTypes.Get(ctx)
	if err != nil {
		return err
	}
	r, err := a.st.SRSRange.Get(ctx)
	if err != nil {
		return err
	}
	style, err := a.st.Style.Get(ctx)
	if err != nil {
		return err
	}
	syn, err := a.st.IncludeSynonyms.Get(ctx)
	if err != nil {
		return err
	}
	domains, err := a.st.Domains.Get(ctx)
	if err != nil {
		return err
	}
	tr, err := a.st.Translation.Get(ctx)
	if err != nil {
		return err
	}
	tok, err := a.st.Token(ctx)
	if err != nil {
		return err
	}

	var enabled []string
	for _, t := range wanikani.SubjectTypes {
		if sel.Enabled(t) {
			enabled = append(enabled, string(t))
		}
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "subject types\t%s\n", strings.Join(enabled, ","))
	fmt.Fprintf(w, "srs range\t%d < stage < %d\n", r.Min, r.Max)
	fmt.Fprintf(w, "style\t%t\n", style)
	fmt.Fprintf(w, "synonyms\t%t\n", syn)
	fmt.Fprintf(w, "translate by default\t%t\n", tr.TranslateByDefault)
	if now := time.Now(); tr.InvertUntil.After(now) {
		fmt.Fprintf(w, "inverted until\t%s\n", tr.InvertUntil.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "always translate\t%s\n", strings.Join(domains.Always, ","))
	fmt.Fprintf(w, "never translate\t%s\n", strings.Join(domains.Never, ","))
	fmt.Fprintf(w, "api token\t%t\n", tok != "")
	return w.Flush()
}

func runStatus(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rows, err := a.st.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tCOUNT\tLAST UPDATED")
	for _, r := range rows {
		last := "never"
		if r.LastUpdated != nil {
			last = r.LastUpdated.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", r.Name, r.Count, last)
	}
	return w.Flush()
}
