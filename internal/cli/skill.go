package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sheetmyself/internal/character"
	"github.com/roach88/sheetmyself/internal/sheet"
)

// SkillView is the JSON form of a skill.
type SkillView struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Records int     `json:"records"`
	Exp     float64 `json:"exp"`
}

// RecordView is the JSON form of a scored practice record.
type RecordView struct {
	ID       string  `json:"id"`
	Date     string  `json:"date"`
	Minutes  int     `json:"minutes"`
	BaseExp  float64 `json:"base_exp"`
	BonusExp float64 `json:"bonus_exp"`
}

// ExpResult is the payload of skill exp.
type ExpResult struct {
	Skill          string       `json:"skill"`
	TotalExp       float64      `json:"total_exp"`
	PotentialBonus float64      `json:"potential_bonus"`
	Records        []RecordView `json:"records"`
}

// NewPlayerCommand creates the player command.
func NewPlayerCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "player [name]",
		Short: "Show or change the player name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlayer(e, args, cmd)
		},
	}
}

func runPlayer(e *env, args []string, cmd *cobra.Command) error {
	f := e.formatter(cmd)
	ctx := cmd.Context()

	cs, err := e.characterSheet(ctx)
	if err != nil {
		return f.Fail("failed to open character sheet", err)
	}
	if len(args) == 1 {
		if err := cs.SetPlayerName(args[0]); err != nil {
			return f.Fail("player failed", err)
		}
		if err := e.commit(ctx, cs.Document()); err != nil {
			return f.Fail("failed to save sheet", err)
		}
	}
	name, err := cs.PlayerName()
	if err != nil {
		return f.Fail("player failed", err)
	}
	if f.Format == "json" {
		return f.Success(map[string]string{"player": name})
	}
	return f.Success(name)
}

// NewSkillCommand creates the skill command group.
func NewSkillCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Manage skills and practice records",
		Long: `Manage skills and practice records.

A skill is addressed by name or id. Records carry a date (YYYY-MM-DD) and a
duration in whole minutes; each hour practiced earns 55 exp, plus a streak
bonus from sessions in the five days before.`,
	}

	cmd.AddCommand(newSkillListCommand(e))
	cmd.AddCommand(newSkillAddCommand(e))
	cmd.AddCommand(newSkillRemoveCommand(e))
	cmd.AddCommand(newSkillRenameCommand(e))
	cmd.AddCommand(newSkillLogCommand(e))
	cmd.AddCommand(newSkillUnlogCommand(e))
	cmd.AddCommand(newSkillExpCommand(e))

	return cmd
}

// findSkill resolves a skill by id or name.
func findSkill(cs *character.Sheet, ref string) (character.Skill, error) {
	if id, err := sheet.ParseID(ref); err == nil && !id.IsRoot() {
		skills, err := cs.Skills()
		if err != nil {
			return character.Skill{}, err
		}
		for _, sk := range skills {
			if sk.ID == id {
				return sk, nil
			}
		}
		return character.Skill{}, fmt.Errorf("%w: no skill with id %s", sheet.ErrNotFound, id)
	}
	return cs.FindSkill(ref)
}

// today returns the date flag, or the current date when it is empty.
func (e *env) today(flag string) (time.Time, error) {
	if flag == "" {
		return character.ParseDate(character.FormatDate(e.now()))
	}
	return character.ParseDate(flag)
}

func newSkillListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List skills with their exp",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.formatter(cmd)
			cs, err := e.characterSheet(cmd.Context())
			if err != nil {
				return f.Fail("failed to open character sheet", err)
			}
			today, err := e.today("")
			if err != nil {
				return f.Fail("skill list failed", err)
			}
			skills, err := cs.Skills()
			if err != nil {
				return f.Fail("skill list failed", err)
			}

			views := make([]SkillView, 0, len(skills))
			for _, sk := range skills {
				records, err := cs.Records(sk.ID)
				if err != nil {
					return f.Fail("skill list failed", err)
				}
				p := character.CalculateExp(records, today)
				views = append(views, SkillView{ID: sk.ID.String(), Name: sk.Name, Records: len(records), Exp: p.TotalExp})
			}

			if f.Format == "json" {
				return f.Success(views)
			}
			if len(views) == 0 {
				return f.Success("No skills.")
			}
			var b strings.Builder
			for _, v := range views {
				fmt.Fprintf(&b, "%s  %d records  %s exp  (%s)\n", v.Name, v.Records, formatExp(v.Exp), v.ID)
			}
			fmt.Fprint(f.Writer, b.String())
			return nil
		},
	}
}

func newSkillAddCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "add [name]",
		Short: "Add a skill",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.formatter(cmd)
			ctx := cmd.Context()
			cs, err := e.characterSheet(ctx)
			if err != nil {
				return f.Fail("failed to open character sheet", err)
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			id, err := cs.AddSkill(name)
			if err != nil {
				return f.Fail("skill add failed", err)
			}
			if err := e.commit(ctx, cs.Document()); err != nil {
				return f.Fail("failed to save sheet", err)
			}
			added, _ := cs.Document().Query(id)
			return f.Success(MutationResult{Action: "added skill", ID: id.String(), Label: added.Label})
		},
	}
}

func newSkillRemoveCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <skill>",
		Short: "Remove a skill and its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.formatter(cmd)
			ctx := cmd.Context()
			cs, err := e.characterSheet(ctx)
			if err != nil {
				return f.Fail("failed to open character sheet", err)
			}
			sk, err := findSkill(cs, args[0])
			if err != nil {
				return f.Fail("skill rm failed", err)
			}
			if err := cs.RemoveSkill(sk.ID); err != nil {
				return f.Fail("skill rm failed", err)
			}
			if err := e.commit(ctx, cs.Document()); err != nil {
				return f.Fail("failed to save sheet", err)
			}
			return f.Success(MutationResult{Action: "removed skill", ID: sk.ID.String(), Label: sk.Name})
		},
	}
}

func newSkillRenameCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <skill> <name>",
		Short: "Rename a skill",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.formatter(cmd)
			ctx := cmd.Context()
			cs, err := e.characterSheet(ctx)
			if err != nil {
				return f.Fail("failed to open character sheet", err)
			}
			sk, err := findSkill(cs, args[0])
			if err != nil {
				return f.Fail("skill rename failed", err)
			}
			if err := cs.RenameSkill(sk.ID, args[1]); err != nil {
				return f.Fail("skill rename failed", err)
			}
			if err := e.commit(ctx, cs.Document()); err != nil {
				return f.Fail("failed to save sheet", err)
			}
			renamed, _ := cs.Document().Query(sk.ID)
			return f.Success(MutationResult{Action: "renamed skill", ID: sk.ID.String(), Label: renamed.Label})
		},
	}
}

func newSkillLogCommand(e *env) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "log <skill> <minutes>",
		Short: "Record a practice session",
		Long: `Record a practice session. Records are kept sorted by date.

Examples:
  sheetmyself skill log Running 45
  sheetmyself skill log Running 90 --date 2024-03-01`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.formatter(cmd)
			ctx := cmd.Context()

			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return f.Fail("skill log failed", fmt.Errorf("%w: minutes must be a whole number, got %q", sheet.ErrInvalidArgument, args[1]))
			}
			day, err := e.today(date)
			if err != nil {
				return f.Fail("skill log failed", err)
			}
			cs, err := e.characterSheet(ctx)
			if err != nil {
				return f.Fail("failed to open character sheet", err)
			}
			sk, err := findSkill(cs, args[0])
			if err != nil {
				return f.Fail("skill log failed", err)
			}
			id, err := cs.AddRecord(sk.ID, day, minutes)
			if err != nil {
				return f.Fail("skill log failed", err)
			}
			if err := cs.SortRecords(sk.ID); err != nil {
				return f.Fail("skill log failed", err)
			}
			if err := e.commit(ctx, cs.Document()); err != nil {
				return f.Fail("failed to save sheet", err)
			}
			return f.Success(MutationResult{
				Action: "logged",
				ID:     id.String(),
				Label:  sk.Name,
				Value:  fmt.Sprintf("%d min on %s", minutes, character.FormatDate(day)),
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "session date (YYYY-MM-DD, default today)")

	return cmd
}

func newSkillUnlogCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "unlog <record-id>",
		Short: "Delete a practice record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.formatter(cmd)
			ctx := cmd.Context()
			id, err := sheet.ParseID(args[0])
			if err != nil {
				return f.Fail("skill unlog failed", err)
			}
			cs, err := e.characterSheet(ctx)
			if err != nil {
				return f.Fail("failed to open character sheet", err)
			}
			if err := cs.RemoveRecord(id); err != nil {
				return f.Fail("skill unlog failed", err)
			}
			if err := e.commit(ctx, cs.Document()); err != nil {
				return f.Fail("failed to save sheet", err)
			}
			return f.Success(MutationResult{Action: "removed record", ID: id.String()})
		},
	}
}

func newSkillExpCommand(e *env) *cobra.Command {
	var todayFlag string

	cmd := &cobra.Command{
		Use:   "exp <skill>",
		Short: "Show a skill's records and exp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := e.formatter(cmd)
			today, err := e.today(todayFlag)
			if err != nil {
				return f.Fail("skill exp failed", err)
			}
			cs, err := e.characterSheet(cmd.Context())
			if err != nil {
				return f.Fail("failed to open character sheet", err)
			}
			sk, err := findSkill(cs, args[0])
			if err != nil {
				return f.Fail("skill exp failed", err)
			}
			records, err := cs.Records(sk.ID)
			if err != nil {
				return f.Fail("skill exp failed", err)
			}

			p := character.CalculateExp(records, today)
			result := ExpResult{
				Skill:          sk.Name,
				TotalExp:       p.TotalExp,
				PotentialBonus: p.PotentialBonus,
				Records:        make([]RecordView, 0, len(p.Records)),
			}
			for _, r := range p.Records {
				result.Records = append(result.Records, RecordView{
					ID:       r.ID.String(),
					Date:     character.FormatDate(r.Date),
					Minutes:  r.Minutes,
					BaseExp:  r.BaseExp,
					BonusExp: r.BonusExp,
				})
			}

			if f.Format == "json" {
				return f.Success(result)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%s: %s exp\n", result.Skill, formatExp(result.TotalExp))
			for _, r := range result.Records {
				fmt.Fprintf(&b, "  %s  %4d min  %s + %s bonus  (%s)\n",
					r.Date, r.Minutes, formatExp(r.BaseExp), formatExp(r.BonusExp), r.ID)
			}
			fmt.Fprintf(&b, "Next session bonus: %s\n", formatExp(result.PotentialBonus))
			fmt.Fprint(f.Writer, b.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&todayFlag, "today", "", "date to score against (YYYY-MM-DD, default today)")

	return cmd
}

// formatExp prints exp with one decimal.
func formatExp(x float64) string {
	return strconv.FormatFloat(x, 'f', 1, 64)
}
