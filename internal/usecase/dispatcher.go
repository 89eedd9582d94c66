package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// FieldRole is the semantic value a template field carries.
type FieldRole string

const (
	RoleTitle    FieldRole = "title"
	RoleSource   FieldRole = "source"
	RoleDate     FieldRole = "date"
	RoleKeywords FieldRole = "keywords"
)

const unknownSource = "未知来源"

// DefaultTemplateFields maps template keys to labels for the stock template.
var DefaultTemplateFields = map[string]string{
	"thing1": "标题",
	"thing2": "来源",
	"time1":  "时间",
	"thing3": "关键词",
}

// roleHints is checked in order; the first hint found in the lowercase label
// or key decides the role. Unmatched fields carry the keywords, or the title
// when no keyword is known.
var roleHints = []struct {
	role      FieldRole
	labelHint []string
	keyHint   []string
}{
	{RoleTitle, []string{"title", "标题", "标"}, []string{"title"}},
	{RoleSource, []string{"source", "来源"}, []string{"site", "source"}},
	{RoleDate, []string{"date", "时间", "日期"}, []string{"time", "date"}},
	{RoleKeywords, []string{"keywords", "关键词"}, []string{"keyword"}},
}

// ResolveRole maps a template field to its role.
func ResolveRole(key, label string) FieldRole {
	k := strings.ToLower(key)
	l := strings.ToLower(label)
	for _, hint := range roleHints {
		for _, h := range hint.labelHint {
			if strings.Contains(l, h) {
				return hint.role
			}
		}
		for _, h := range hint.keyHint {
			if strings.Contains(k, h) {
				return hint.role
			}
		}
	}
	return RoleKeywords
}

type fieldBinding struct {
	key  string
	role FieldRole
}

// DispatcherOptions configures payload rendering and template selection.
type DispatcherOptions struct {
	// Fields maps template keys to labels; empty means DefaultTemplateFields.
	Fields map[string]string
	// DefaultTemplateIDs apply to subscribers without their own list.
	DefaultTemplateIDs []string
	// TemplateOptional sends one message without template when none apply,
	// for providers that render plain text.
	TemplateOptional bool
	// PageFormat renders the target page from the notice id, substituted
	// for "{id}" or "%d". A format without either is used as is.
	PageFormat string
}

// Dispatcher fans a persisted notice out to every (subscriber x template).
type Dispatcher struct {
	repository ports.NoticeRepository
	messenger  ports.Messenger
	settings   ports.SubscriptionSettings
	bindings   []fieldBinding
	opts       DispatcherOptions
	logger     *slog.Logger
	now        func() time.Time
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(repo ports.NoticeRepository, messenger ports.Messenger, settings ports.SubscriptionSettings, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fields := opts.Fields
	if len(fields) == 0 {
		fields = DefaultTemplateFields
	}
	if opts.PageFormat == "" {
		opts.PageFormat = "pages/detail/detail?id=%d"
	}

	keys := make([]string, 0, len(fields))
	for k, label := range fields {
		if strings.TrimSpace(label) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	bindings := make([]fieldBinding, 0, len(keys))
	for _, k := range keys {
		bindings = append(bindings, fieldBinding{key: k, role: ResolveRole(k, fields[k])})
	}

	return &Dispatcher{
		repository: repo,
		messenger:  messenger,
		settings:   settings,
		bindings:   bindings,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Notify returns the number of delivery attempts. Failures are logged per
// pair and never stop the remaining pairs.
func (d *Dispatcher) Notify(ctx context.Context, notice domain.Notice, matched []domain.KeywordRule) int {
	if d.messenger == nil {
		return 0
	}
	var settings domain.SubscriptionSettings
	if d.settings != nil {
		settings = d.settings.Load(ctx)
		if !settings.Enabled {
			d.logger.Debug("subscriptions disabled, notification skipped", "notice_id", notice.ID)
			return 0
		}
	}

	subscribers, err := d.repository.GetSubscribers(ctx)
	if err != nil {
		d.logger.Warn("load subscribers failed", "error", err)
		return 0
	}
	if len(subscribers) == 0 {
		return 0
	}

	fields := d.render(notice, matched)
	summary := d.summary(notice, matched)
	page := renderPage(d.opts.PageFormat, notice.ID)

	attempts := 0
	for _, sub := range subscribers {
		templates := d.templatesFor(sub, settings)
		if len(templates) == 0 {
			if !d.opts.TemplateOptional {
				d.logger.Warn("no template for subscriber", "recipient", sub.OpenID)
				continue
			}
			templates = []string{""}
		}
		for _, tmpl := range templates {
			attempts++
			res := d.messenger.Send(ctx, ports.Message{
				Recipient:  sub.OpenID,
				TemplateID: tmpl,
				Page:       page,
				Fields:     fields,
				Summary:    summary,
			})
			if !res.OK {
				d.logger.Warn("notification failed", "recipient", sub.OpenID, "template", tmpl, "reason", res.Message)
			}
		}
	}
	return attempts
}

func (d *Dispatcher) templatesFor(sub domain.Subscriber, settings domain.SubscriptionSettings) []string {
	if ids := nonEmpty(sub.TemplateIDs); len(ids) > 0 {
		return ids
	}
	if ids := nonEmpty(d.opts.DefaultTemplateIDs); len(ids) > 0 {
		return ids
	}
	return nonEmpty(settings.TemplateIDs)
}

func (d *Dispatcher) render(notice domain.Notice, matched []domain.KeywordRule) map[string]string {
	values := d.roleValues(notice, matched)
	out := make(map[string]string, len(d.bindings))
	for _, b := range d.bindings {
		out[b.key] = values[b.role]
	}
	return out
}

func (d *Dispatcher) roleValues(notice domain.Notice, matched []domain.KeywordRule) map[FieldRole]string {
	source := notice.SourceName
	if source == "" {
		source = unknownSource
	}
	date := notice.PublishDate
	if date == "" {
		date = d.now().Format(domain.DateLayout)
	}
	keywords := joinPatterns(matched)
	if keywords == "" {
		keywords = notice.Title
	}
	return map[FieldRole]string{
		RoleTitle:    notice.Title,
		RoleSource:   source,
		RoleDate:     date,
		RoleKeywords: keywords,
	}
}

func (d *Dispatcher) summary(notice domain.Notice, matched []domain.KeywordRule) string {
	values := d.roleValues(notice, matched)
	return fmt.Sprintf("【%s】%s\n发布日期：%s\n关键词：%s\n%s",
		values[RoleSource], values[RoleTitle], values[RoleDate], values[RoleKeywords], notice.URL)
}

func joinPatterns(rules []domain.KeywordRule) string {
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		if p := strings.TrimSpace(r.Pattern); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ",")
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func renderPage(format string, id int64) string {
	value := strconv.FormatInt(id, 10)
	if strings.Contains(format, "{id}") {
		return strings.ReplaceAll(format, "{id}", value)
	}
	return strings.Replace(format, "%d", value, 1)
}
