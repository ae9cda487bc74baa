package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/AshkanYarmoradi/go-behave/cli/config"
	"github.com/AshkanYarmoradi/go-behave/cli/styles"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// NewGenerateCommand builds the generate command tree.
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Scaffold aggregates, events, and commands",
		Long: `Generate boilerplate code for aggregates, events, and commands.

Usage examples:
  behave generate aggregate Order
  behave generate aggregate Order --events Created,ItemAdded,Shipped
  behave generate event OrderShipped --aggregate Order
  behave generate command AddItem --aggregate Order`,
		Aliases: []string{"gen", "g"},
	}

	cmd.AddCommand(
		newGenerateAggregateCmd(),
		newGenerateEventCmd(),
		newGenerateCommandCmd(),
	)

	return cmd
}

func newGenerateAggregateCmd() *cobra.Command {
	var (
		events         []string
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "aggregate <name>",
		Short: "Generate an aggregate with its behavior rules",
		Long: `Generate a new aggregate with creation and update rule scaffolding.

Usage examples:
  behave generate aggregate Order
  behave generate aggregate Order --events Created,ItemAdded,Shipped`,
		Aliases: []string{"agg", "a"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(events) == 0 {
				var input string
				err := askIfEmpty("Events", "Comma-separated list of events (e.g., Created,Updated,Deleted)",
					"Created,Updated,Deleted", &input, nonInteractive)
				if err != nil {
					return err
				}
				events = splitList(input)
			}
			return generateAggregate(args[0], events)
		},
	}

	cmd.Flags().StringSliceVarP(&events, "events", "e", nil, "Event names to scaffold, comma separated")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Skip prompts for scripted runs")

	return cmd
}

func generateAggregate(name string, events []string) error {
	cfg, _, err := configOrDefault()
	if err != nil {
		return err
	}

	data := buildAggregateData(cfg.Project.Module, cfg.Generation.AggregatePackage,
		cfg.Generation.EventPackage, name, events)

	base := strings.ToLower(name)

	aggFile, err := scaffoldFile(cfg.Generation.AggregatePackage, base+".go", aggregateTmpl, data)
	if err != nil {
		return err
	}

	if data.HasEvents {
		fileData := EventFileData{
			Aggregate: data.Name,
			Module:    cfg.Project.Module,
			Package:   filepath.Base(cfg.Generation.EventPackage),
			Events:    data.Events,
		}
		if _, err := scaffoldFile(cfg.Generation.EventPackage, base+"_events.go", eventsFileTmpl, fileData); err != nil {
			return err
		}
	}

	if _, err := scaffoldFile(cfg.Generation.AggregatePackage, base+"_test.go", aggregateTestTmpl, data); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(styles.InfoBox.Render(fmt.Sprintf(`%s Scaffolded aggregate %s

Next steps:
  1. Fill in the aggregate state and event folds in %s
  2. Add commands in %s
  3. Wire the behavior into a runtime: behave.NewRuntime(behavior, journal)`,
		styles.IconSuccess, data.Name, aggFile, cfg.Generation.CommandPackage)))

	return nil
}

// memberSpec describes a generated file that hangs off an existing
// aggregate, such as a standalone event or command.
type memberSpec struct {
	use      string
	short    string
	aliases  []string
	prompt   string
	flagHelp string
	dir      func(*config.Config) string
	tmpl     string
}

func newMemberCmd(spec memberSpec) *cobra.Command {
	var (
		aggregate      string
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:     spec.use,
		Short:   spec.short,
		Aliases: spec.aliases,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := configOrDefault()
			if err != nil {
				return err
			}

			if err := askIfEmpty("Aggregate Name", spec.prompt, "Order", &aggregate, nonInteractive); err != nil {
				return err
			}

			dir := spec.dir(cfg)
			data := MemberData{
				Module:    cfg.Project.Module,
				Package:   filepath.Base(dir),
				Name:      toPascalCase(args[0]),
				Aggregate: toPascalCase(aggregate),
			}

			_, err = scaffoldFile(dir, strings.ToLower(args[0])+".go", spec.tmpl, data)
			return err
		},
	}

	cmd.Flags().StringVarP(&aggregate, "aggregate", "a", "", spec.flagHelp)
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Skip prompts for scripted runs")

	return cmd
}

func newGenerateEventCmd() *cobra.Command {
	return newMemberCmd(memberSpec{
		use:      "event <name>",
		short:    "Generate an event",
		aliases:  []string{"evt", "e"},
		prompt:   "The aggregate this event belongs to",
		flagHelp: "Aggregate this event belongs to",
		dir:      func(cfg *config.Config) string { return cfg.Generation.EventPackage },
		tmpl:     singleEventTmpl,
	})
}

func newGenerateCommandCmd() *cobra.Command {
	return newMemberCmd(memberSpec{
		use:      "command <name>",
		short:    "Generate a command",
		aliases:  []string{"cmd", "c"},
		prompt:   "The aggregate this command operates on",
		flagHelp: "Aggregate this command operates on",
		dir:      func(cfg *config.Config) string { return cfg.Generation.CommandPackage },
		tmpl:     commandTmpl,
	})
}

// askIfEmpty prompts for value when it was not provided on the command
// line. Non-interactive runs leave it untouched.
func askIfEmpty(title, description, placeholder string, value *string, nonInteractive bool) error {
	if nonInteractive || *value != "" {
		return nil
	}

	input := huh.NewInput().Title(title).Description(description).Value(value).Placeholder(placeholder)
	return huh.NewForm(huh.NewGroup(input)).WithTheme(huh.ThemeDracula()).Run()
}

// splitList splits a comma-separated flag value into trimmed names.
func splitList(input string) []string {
	if input == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(input, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

type AggregateData struct {
	Name          string
	Module        string
	Package       string
	EventsPackage string // base package name for generated events
	EventsImport  string // full import path for the events package
	HasEvents     bool
	InlineCreated bool   // define <Name>Created in the aggregate file
	InlineUpdated bool   // define <Name>Updated in the aggregate file
	CreationEvent string // type reference for the creation fold
	CreationEmit  string // composite literal emitted by the creation rule
	CreationSeed  string // composite literal returned by the creation fold
	UpdateEmit    string // composite literal emitted by the placeholder update rule
	UpdateFolds   []UpdateFoldData
	Events        []string // PascalCase event names
}

type UpdateFoldData struct {
	EventRef  string
	EventName string
}

type EventFileData struct {
	Aggregate string // owning aggregate, PascalCase
	Module    string
	Package   string
	Events    []string
}

// MemberData feeds the single-event and command templates.
type MemberData struct {
	Module    string
	Package   string // base name of the output package
	Name      string
	Aggregate string // owning aggregate, PascalCase
}

// buildAggregateData resolves event references for the aggregate template.
// The first listed event seeds the creation fold; the rest become update
// folds. Without events, placeholder Created/Updated events are defined
// inline so the generated behavior builds and tests pass immediately.
func buildAggregateData(module, aggregatePackage, eventPackage, name string, events []string) AggregateData {
	data := AggregateData{
		Name:          toPascalCase(name),
		Module:        module,
		Package:       filepath.Base(aggregatePackage),
		EventsPackage: filepath.Base(eventPackage),
		EventsImport:  module + "/" + eventPackage,
	}

	for _, e := range events {
		data.Events = append(data.Events, toPascalCase(e))
	}

	if len(data.Events) > 0 {
		data.HasEvents = true
		first := data.Events[0]
		data.CreationEvent = data.EventsPackage + "." + first
		data.CreationEmit = fmt.Sprintf("%s.%s{%sID: cmd.ID}", data.EventsPackage, first, data.Name)
		data.CreationSeed = fmt.Sprintf("%s{ID: e.%sID}", data.Name, data.Name)
		for _, name := range data.Events[1:] {
			data.UpdateFolds = append(data.UpdateFolds, UpdateFoldData{
				EventRef:  data.EventsPackage + "." + name,
				EventName: name,
			})
		}
	} else {
		data.InlineCreated = true
		data.CreationEvent = data.Name + "Created"
		data.CreationEmit = fmt.Sprintf("%sCreated{ID: cmd.ID}", data.Name)
		data.CreationSeed = fmt.Sprintf("%s{ID: e.ID}", data.Name)
	}

	if len(data.UpdateFolds) > 0 {
		data.UpdateEmit = fmt.Sprintf("%s{%sID: agg.AggregateID()}", data.UpdateFolds[0].EventRef, data.Name)
	} else {
		data.InlineUpdated = true
		data.UpdateEmit = fmt.Sprintf("%sUpdated{ID: agg.AggregateID()}", data.Name)
		data.UpdateFolds = append(data.UpdateFolds, UpdateFoldData{
			EventRef:  data.Name + "Updated",
			EventName: data.Name + "Updated",
		})
	}

	return data
}

// toPascalCase joins words split on underscores, hyphens, and spaces,
// capitalizing each. Existing capitals are kept, so userID stays UserID.
func toPascalCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	upperNext := true
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			upperNext = true
		case upperNext:
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// generateFile renders tmpl with data and writes the result to path.
func generateFile(path string, tmpl string, data any) error {
	tpl, err := template.New(filepath.Base(path)).
		Funcs(template.FuncMap{"ToLower": strings.ToLower}).
		Parse(tmpl)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := tpl.Execute(&out, data); err != nil {
		return err
	}
	return os.WriteFile(path, out.Bytes(), 0644)
}

// scaffoldFile renders tmpl into dir/file, creating dir first, and reports
// the created path.
func scaffoldFile(dir, file, tmpl string, data any) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, file)
	if err := generateFile(path, tmpl, data); err != nil {
		return "", err
	}

	fmt.Println(styles.FormatSuccess("Created " + path))
	return path, nil
}

var aggregateTmpl = `package {{.Package}}

import (
	"context"

	"github.com/AshkanYarmoradi/go-behave"
{{- if .HasEvents}}

	"{{.EventsImport}}"
{{- end}}
)

// {{.Name}} is the {{.Name}} aggregate state. Snapshots are immutable values:
// folds return the next state instead of mutating the current one.
type {{.Name}} struct {
	ID string
	// Aggregate state fields go here.
}

// AggregateID returns the unique identifier for this aggregate instance.
func (a {{.Name}}) AggregateID() string {
	return a.ID
}

// Create{{.Name}} starts the {{.Name}} lifecycle.
type Create{{.Name}} struct {
	ID string
	// Command fields go here.
}

// CommandType names the command in rejections and idempotency records.
func (c Create{{.Name}}) CommandType() string {
	return "Create{{.Name}}"
}

// Update{{.Name}} is a placeholder update command. Replace it with commands
// from your domain.
type Update{{.Name}} struct {
	ID string
}

// CommandType names the command in rejections and idempotency records.
func (c Update{{.Name}}) CommandType() string {
	return "Update{{.Name}}"
}
{{- if .InlineCreated}}

// {{.Name}}Created is recorded when a {{.Name}} is created.
type {{.Name}}Created struct {
	ID string ` + "`json:\"id\"`" + `
}
{{- end}}
{{- if .InlineUpdated}}

// {{.Name}}Updated is a placeholder update event. Replace it with events
// from your domain.
type {{.Name}}Updated struct {
	ID string ` + "`json:\"id\"`" + `
}
{{- end}}

// New{{.Name}}Behavior assembles the ordered rules for {{.Name}}. Creation
// rules decide the first event of a stream; update rules see current state.
// The first matching rule wins, so registration order is part of the contract.
func New{{.Name}}Behavior() (*behave.Behavior[{{.Name}}], error) {
	creation := behave.NewCreationRules[{{.Name}}]()
	creation = behave.HandleCreation(creation, func(ctx context.Context, cmd Create{{.Name}}) behave.Outcome {
		return behave.Emit({{.CreationEmit}})
	})
	creation = behave.FoldCreation(creation, func(e {{.CreationEvent}}) {{.Name}} {
		return {{.CreationSeed}}
	})

	update := behave.NewUpdateRules[{{.Name}}]()
	update = behave.HandleUpdate(update, func(ctx context.Context, cmd Update{{.Name}}, agg {{.Name}}) behave.Outcome {
		// TODO: replace this placeholder with real update commands
		return behave.Emit({{.UpdateEmit}})
	})
{{- range .UpdateFolds}}
	update = behave.FoldUpdate(update, func(agg {{$.Name}}, e {{.EventRef}}) {{$.Name}} {
		// TODO: fold {{.EventName}} into the next state
		return agg
	})
{{- end}}

	return behave.New[{{.Name}}]("{{.Name}}").
		WithCreation(creation).
		WithUpdate(update).
		Build()
}
`

var eventsFileTmpl = `package {{.Package}}

import "time"
{{range .Events}}
// {{.}} is recorded when {{$.Aggregate}} {{. | ToLower}}.
type {{.}} struct {
	{{$.Aggregate}}ID string    ` + "`json:\"{{$.Aggregate | ToLower}}_id\"`" + `
	Timestamp         time.Time ` + "`json:\"timestamp\"`" + `
	// Event payload fields go here.
}

// EventName returns the stored event type name.
func (e {{.}}) EventName() string {
	return "{{$.Aggregate}}{{.}}"
}
{{end}}
`

var singleEventTmpl = `package {{.Package}}

import "time"

// {{.Name}} is recorded when {{.Aggregate}} {{.Name | ToLower}}.
// The stored event type defaults to the struct name; implement
// behave.EventNamer to override it.
type {{.Name}} struct {
	{{.Aggregate}}ID string    ` + "`json:\"{{.Aggregate | ToLower}}_id\"`" + `
	Timestamp         time.Time ` + "`json:\"timestamp\"`" + `
	// Event payload fields go here.
}
`

var aggregateTestTmpl = `package {{.Package}}

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew{{.Name}}Behavior(t *testing.T) {
	behavior, err := New{{.Name}}Behavior()
	require.NoError(t, err)
	assert.Equal(t, "{{.Name}}", behavior.Kind())
}

func Test{{.Name}}Creation(t *testing.T) {
	behavior, err := New{{.Name}}Behavior()
	require.NoError(t, err)

	event, err := behavior.ValidateCreation(context.Background(), Create{{.Name}}{ID: "{{.Name | ToLower}}-1"})
	require.NoError(t, err)

	agg, err := behavior.ApplyCreation(event)
	require.NoError(t, err)
	assert.Equal(t, "{{.Name | ToLower}}-1", agg.AggregateID())
}

func Test{{.Name}}RejectsUnknownCommand(t *testing.T) {
	behavior, err := New{{.Name}}Behavior()
	require.NoError(t, err)

	_, err = behavior.ValidateCreation(context.Background(), struct{}{})
	assert.Error(t, err)
}
`

var commandTmpl = `package {{.Package}}

import "errors"

// {{.Name}} asks a {{.Aggregate}} to {{.Name | ToLower}}.
type {{.Name}} struct {
	{{.Aggregate}}ID string
	// Command fields go here.
}

// CommandType names the command in rejections and idempotency records.
func (c {{.Name}}) CommandType() string {
	return "{{.Name}}"
}

// Validate checks the command is well formed before it reaches the behavior.
func (c {{.Name}}) Validate() error {
	if c.{{.Aggregate}}ID == "" {
		return errors.New("{{.Aggregate | ToLower}}_id must not be empty")
	}
	// Domain validation goes here.
	return nil
}

// Submit the command through a runtime wired with the {{.Aggregate}} behavior:
//
//	result, err := runtime.Submit(ctx, cmd.{{.Aggregate}}ID, cmd)
`
