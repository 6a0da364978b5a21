package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"almond/backend/internal/dto"
	"almond/backend/internal/model"
	"almond/backend/internal/repository"
	"almond/backend/internal/service"
)

var (
	statusTaskID string
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看任务的周期进度",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)

		repo := repository.NewRepository(db)
		snap, err := service.NewReportService(repo, repo.Roster, logger).Snapshot(cmd.Context(), statusTaskID)
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderSnapshot(snap))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusTaskID, "task", "t", "", "任务 ID")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "以 JSON 输出")
	_ = statusCmd.MarkFlagRequired("task")
}

// renderSnapshot 渲染周期总览：周会列表 + 成员 × 周次目标矩阵
func renderSnapshot(snap *dto.CycleSnapshot) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  [%s]", snap.Title, snap.Status)))
	b.WriteString("\n")
	if snap.Cycle == nil {
		b.WriteString(subtleStyle.Render("周期尚未确认"))
		return b.String()
	}
	b.WriteString(subtleStyle.Render(fmt.Sprintf("周期 %d 周，已完成周会 %d/%d", *snap.Cycle, snap.Completed, len(snap.Meetings))))
	b.WriteString("\n\n")

	// ── 周会 ──
	lines := make([]string, 0, len(snap.Meetings))
	for _, m := range snap.Meetings {
		status := warnStyle.Render(m.Status)
		if m.Status == string(model.MeetingStatusCompleted) {
			status = successStyle.Render(m.Status)
		}
		lines = append(lines, fmt.Sprintf("第%d次  %s  %s", m.MeetingNo, m.MeetingDate, status))
	}
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	// ── 成员目标 ──
	rows := make([]string, 0, len(snap.Members))
	for _, mp := range snap.Members {
		cells := []string{lipgloss.NewStyle().Width(12).Render(mp.Name)}
		for _, w := range mp.Weeks {
			cells = append(cells, goalCell(w.Status))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	b.WriteString(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	return b.String()
}

func goalCell(status string) string {
	cell := lipgloss.NewStyle().Width(12)
	switch model.GoalStatus(status) {
	case model.GoalStatusFinished:
		return cell.Foreground(successColor).Render(status)
	case model.GoalStatusProcessing:
		return cell.Foreground(primaryColor).Render(status)
	case model.GoalStatusNotSet:
		return cell.Foreground(errorColor).Render(status)
	default:
		return cell.Foreground(secondaryColor).Render(status)
	}
}
