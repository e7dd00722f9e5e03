package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/excel"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/mqtt"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	listSearch   string
	listCategory string
	listOutput   string
	exportOut    string

	addFlags  = &participantFlags{}
	editFlags = &participantFlags{}
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List participants with age and BMI",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a participant record",
	Args:  cobra.NoArgs,
	RunE:  runAdd,
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a participant record; only the given flags change",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a participant record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the (filtered) participants to an .xlsx file",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print participant change events from MQTT",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	for _, c := range []*cobra.Command{listCmd, exportCmd} {
		c.Flags().StringVarP(&listSearch, "query", "q", "", "search name or NIK")
		c.Flags().StringVar(&listCategory, "category", service.CategoryAll, "BMI category: all, "+strings.Join(domain.Categories, ", "))
	}
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "table, json or yaml")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: generated name in the current directory)")

	addFlags.bind(addCmd)
	editFlags.bind(editCmd)
}

// participantFlags 参与者字段的命令行参数
type participantFlags struct {
	nik, name, dob, address string
	au, immunization, td    string
	bb, tb, lila, gds, lp   float64
	hb, chol                float64
	custom                  []string
}

func (f *participantFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.nik, "nik", "", "NIK (16 digits)")
	fs.StringVar(&f.name, "name", "", "full name")
	fs.StringVar(&f.dob, "dob", "", "date of birth, YYYY-MM-DD")
	fs.StringVar(&f.address, "address", "", "address")
	fs.Float64Var(&f.bb, "bb", 0, "weight (kg)")
	fs.Float64Var(&f.tb, "tb", 0, "height (cm)")
	fs.Float64Var(&f.lila, "lila", 0, "mid-upper arm circumference (cm)")
	fs.Float64Var(&f.gds, "gds", 0, "blood glucose (mg/dL)")
	fs.StringVar(&f.au, "au", "", "uric acid")
	fs.StringVar(&f.immunization, "immunization", "", "immunization status")
	fs.Float64Var(&f.lp, "lp", 0, "waist circumference (cm)")
	fs.StringVar(&f.td, "td", "", "blood pressure, e.g. 120/80")
	fs.Float64Var(&f.hb, "hb", 0, "hemoglobin (g/dL)")
	fs.Float64Var(&f.chol, "chol", 0, "cholesterol (mg/dL)")
	fs.StringArrayVar(&f.custom, "custom", nil, "custom field label=value (repeatable)")
}

// input overlays the flags given on the command line onto base.
func (f *participantFlags) input(cmd *cobra.Command, base domain.ParticipantFields) (domain.ParticipantInput, error) {
	changed := cmd.Flags().Changed
	if changed("nik") {
		base.NIK = f.nik
	}
	if changed("name") {
		base.Name = f.name
	}
	if changed("dob") {
		d, err := domain.ParseDate(f.dob)
		if err != nil {
			return domain.ParticipantInput{}, domain.ValidationErrors{"date_of_birth": "Format tanggal harus YYYY-MM-DD"}
		}
		base.DateOfBirth = d
	}
	if changed("address") {
		base.Address = f.address
	}
	floats := []struct {
		name string
		dst  *float64
		v    float64
	}{
		{"bb", &base.BB, f.bb}, {"tb", &base.TB, f.tb}, {"lila", &base.LILA, f.lila},
		{"gds", &base.GDS, f.gds}, {"lp", &base.LP, f.lp}, {"hb", &base.HB, f.hb},
		{"chol", &base.Chol, f.chol},
	}
	for _, fl := range floats {
		if changed(fl.name) {
			*fl.dst = fl.v
		}
	}
	if changed("au") {
		base.AU = f.au
	}
	if changed("immunization") {
		base.Immunization = f.immunization
	}
	if changed("td") {
		base.TD = f.td
	}

	custom, err := parseCustom(f.custom)
	if err != nil {
		return domain.ParticipantInput{}, err
	}
	return domain.ParticipantInput{ParticipantFields: base, Custom: custom}, nil
}

// parseCustom parses "label=value" entries into custom text fields.
func parseCustom(entries []string) ([]domain.CustomFieldInput, error) {
	out := make([]domain.CustomFieldInput, 0, len(entries))
	for _, e := range entries {
		label, value, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --custom %q, expected label=value", e)
		}
		out = append(out, domain.CustomFieldInput{Label: label, Value: value, Type: domain.CustomFieldText})
	}
	return out, nil
}

// signedIn attaches the CLI session to ctx, or fails with the not-signed-in message.
func (a *app) signedIn(ctx context.Context) (context.Context, func(), error) {
	sc := service.NewSessionContext(a.cliSession(), a.logger)
	if err := sc.Start(ctx); err != nil {
		return nil, nil, err
	}
	if sc.Current() == nil {
		sc.Stop()
		return nil, nil, errors.New(service.MsgNotSignedIn)
	}
	return sc.WithSession(ctx), sc.Stop, nil
}

// actionError turns a record action error into its user message.
func actionError(err error, fallback string) error {
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		return fmt.Errorf("%s\n%s", service.MsgInvalidInput, formatValidation(verrs))
	}
	return errors.New(service.ActionMessage(err, fallback))
}

func formatValidation(verrs domain.ValidationErrors) string {
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, "  "+k+": "+verrs[k])
	}
	return strings.Join(lines, "\n")
}

func printList(w io.Writer, list *service.ParticipantList, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		// same shape as json: go through the json encoding first
		raw, err := json.Marshal(list)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(doc)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NO\tID\tNIK\tNAMA\tUMUR\tBB\tTB\tBMI\tSTATUS")
	for _, p := range list.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%g\t%g\t%.1f\t%s\n",
			p.No, p.ID, p.NIK, p.Name, p.AgeYears, p.BB, p.TB, p.BMI, p.BMICategory)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Peserta (%d)\n", list.Count)
	return err
}

// printResult prints the action message and the refreshed count.
func printResult(w io.Writer, msg string, list *service.ParticipantList) {
	fmt.Fprintln(w, msg)
	if list != nil {
		fmt.Fprintf(w, "Peserta (%d)\n", list.Total)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop, err := a.signedIn(cmd.Context())
	if err != nil {
		return err
	}
	defer stop()

	list, err := a.participantS.List(ctx, service.ListQuery{Search: listSearch, Category: listCategory})
	if err != nil {
		return actionError(err, service.MsgLoadFailed)
	}
	return printList(cmd.OutOrStdout(), list, listOutput)
}

func runAdd(cmd *cobra.Command, args []string) error {
	in, err := addFlags.input(cmd, domain.ParticipantFields{})
	if err != nil {
		return actionError(err, service.MsgCreateFailed)
	}

	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop, err := a.signedIn(cmd.Context())
	if err != nil {
		return err
	}
	defer stop()

	list, err := a.participantS.Create(ctx, in)
	if err != nil {
		return actionError(err, service.MsgCreateFailed)
	}
	printResult(cmd.OutOrStdout(), service.MsgCreated, list)
	return nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop, err := a.signedIn(cmd.Context())
	if err != nil {
		return err
	}
	defer stop()

	current, err := a.participantS.List(ctx, service.ListQuery{})
	if err != nil {
		return actionError(err, service.MsgLoadFailed)
	}
	var existing *domain.Participant
	for _, p := range current.Items {
		if p.ID == args[0] {
			existing = p.Participant
			break
		}
	}
	if existing == nil {
		return errors.New(service.MsgNotFound)
	}

	in, err := editFlags.input(cmd, existing.Fields())
	if err != nil {
		return actionError(err, service.MsgUpdateFailed)
	}
	list, err := a.participantS.Update(ctx, args[0], in)
	if err != nil {
		return actionError(err, service.MsgUpdateFailed)
	}
	printResult(cmd.OutOrStdout(), service.MsgUpdated, list)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop, err := a.signedIn(cmd.Context())
	if err != nil {
		return err
	}
	defer stop()

	list, err := a.participantS.Delete(ctx, args[0])
	if err != nil {
		return actionError(err, service.MsgDeleteFailed)
	}
	printResult(cmd.OutOrStdout(), service.MsgDeleted, list)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop, err := a.signedIn(cmd.Context())
	if err != nil {
		return err
	}
	defer stop()

	table, err := a.participantS.Export(ctx, service.ListQuery{Search: listSearch, Category: listCategory})
	if err != nil {
		return actionError(err, service.MsgLoadFailed)
	}
	data, err := excel.ParticipantWorkbook(table)
	if err != nil {
		return err
	}

	path := exportOut
	if path == "" {
		path = table.FileName
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d peserta)\n", path, len(table.Rows))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), "posyandu-cli")
	if err != nil {
		return err
	}
	defer a.Close()
	if a.mqtt == nil {
		return errors.New("MQTT is not enabled or the broker is unreachable (MQTT_ENABLED, MQTT_BROKER)")
	}

	out := cmd.OutOrStdout()
	err = a.mqtt.Subscribe(a.cfg.MQTT.Topic, 1, func(topic string, payload []byte) error {
		ev, err := mqtt.DecodeEvent(payload)
		if err != nil {
			return fmt.Errorf("invalid event on %s: %w", topic, err)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", ev.At.In(a.loc).Format("2006-01-02 15:04:05"), ev.Event, ev.ParticipantID, ev.UserID)
		return nil
	})
	if err != nil {
		return err
	}
	a.logger.Info("Watching participant changes", zap.String("topic", a.cfg.MQTT.Topic))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-cmd.Context().Done():
	}
	return nil
}
