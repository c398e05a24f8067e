package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"jma-forecast/internal/models"
	"jma-forecast/internal/services"
	"jma-forecast/pkg/logging"
)

const fetchFailedStatus = "取得エラーが発生しました。詳細はログを確認してください。"

// Catalog lists regions and offices
type Catalog interface {
	ListRegions(ctx context.Context) ([]models.Region, error)
	ListOffices(ctx context.Context, regionCode string) ([]models.Office, error)
}

// ForecastSource serves forecast display lines
type ForecastSource interface {
	GetForecastDisplay(ctx context.Context, officeCode string) (*services.DisplayResult, error)
	Purge(ctx context.Context, officeCode string) (int64, error)
}

// Console is an interactive terminal front-end. Run is its event loop: it
// is the only goroutine touching the view state and it receives background
// fetch results from the dispatcher channel.
type Console struct {
	catalog     Catalog
	forecasts   ForecastSource
	completions <-chan services.Completion
	in          io.Reader
	out         io.Writer
	logger      *logging.StructuredLogger

	state ViewState
}

// NewConsole creates a console reading commands from in and drawing to out
func NewConsole(
	catalog Catalog,
	forecasts ForecastSource,
	completions <-chan services.Completion,
	in io.Reader,
	out io.Writer,
	logger *logging.StructuredLogger,
) *Console {
	return &Console{
		catalog:     catalog,
		forecasts:   forecasts,
		completions: completions,
		in:          in,
		out:         out,
		logger:      logger,
	}
}

// State returns a copy of the current view state
func (c *Console) State() ViewState {
	return c.state
}

// Run loads the regions and processes commands and completions until the
// user quits, input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	regions, err := c.catalog.ListRegions(ctx)
	if err != nil {
		return fmt.Errorf("load regions: %w", err)
	}
	c.state.Regions = regions
	if len(regions) == 0 {
		c.state.Status = "地方データがありません。importer を実行してください。"
	}
	c.render()

	commands := make(chan string)
	go func() {
		defer close(commands)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case commands <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-commands:
			if !ok {
				return nil
			}
			if quit := c.handleCommand(ctx, line); quit {
				return nil
			}
		case completion := <-c.completions:
			if !c.applyCompletion(completion) {
				continue
			}
		}
		c.render()
	}
}

func (c *Console) render() {
	io.WriteString(c.out, Render(c.state))
}

// handleCommand applies one command line and reports whether to quit
func (c *Console) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "q", "quit", "exit":
		return true
	case "r", "region":
		if len(fields) < 2 {
			c.state.Status = "地方コードを指定してください。"
			return false
		}
		c.selectRegion(ctx, fields[1])
	case "o", "office":
		if len(fields) < 2 {
			c.state.Status = "府県コードを指定してください。"
			return false
		}
		c.selectOffice(ctx, fields[1])
	case "purge":
		c.purge(ctx)
	default:
		c.state.Status = "不明なコマンド: " + fields[0]
	}
	return false
}

func (c *Console) selectRegion(ctx context.Context, code string) {
	known := false
	for _, r := range c.state.Regions {
		if r.Code == code {
			known = true
			break
		}
	}
	if !known {
		c.state.Status = "不明な地方コード: " + code
		return
	}

	offices, err := c.catalog.ListOffices(ctx, code)
	if err != nil {
		c.logger.Error(ctx, "[UI_LIST_OFFICES_ERROR] Failed to list offices", logging.Fields{
			"region_code": code,
		}, err)
		c.state.Status = "府県一覧を読み込めませんでした。"
		return
	}

	c.state.SelectedRegion = code
	c.state.Offices = offices
	c.state.SelectedOffice = ""
	c.state.Lines = nil
	c.state.Status = ""
}

func (c *Console) selectOffice(ctx context.Context, code string) {
	known := false
	for _, o := range c.state.Offices {
		if o.OfficeCode == code {
			known = true
			break
		}
	}
	if !known {
		c.state.Status = "不明な府県コード: " + code
		return
	}

	c.state.SelectedOffice = code
	c.state.Lines = nil
	c.state.Status = ""

	result, err := c.forecasts.GetForecastDisplay(ctx, code)
	if err != nil {
		c.logger.Error(ctx, "[UI_FORECAST_ERROR] Failed to read forecast", logging.Fields{
			"office_code": code,
		}, err)
		c.state.Lines = []string{services.FailureMessage}
		return
	}

	if result.Pending {
		c.state.Status = "取得中..."
		return
	}
	c.state.Lines = result.Lines
}

func (c *Console) purge(ctx context.Context) {
	if c.state.SelectedOffice == "" {
		c.state.Status = "府県が選択されていません。"
		return
	}

	n, err := c.forecasts.Purge(ctx, c.state.SelectedOffice)
	if err != nil {
		c.logger.Error(ctx, "[UI_PURGE_ERROR] Failed to purge forecast", logging.Fields{
			"office_code": c.state.SelectedOffice,
		}, err)
		c.state.Status = "キャッシュを削除できませんでした。"
		return
	}
	c.state.Status = fmt.Sprintf("キャッシュを%d件削除しました。", n)
}

// applyCompletion shows a finished fetch if it is for the selected office.
// It reports whether the view changed.
func (c *Console) applyCompletion(completion services.Completion) bool {
	if completion.OfficeCode != c.state.SelectedOffice {
		c.logger.Debug(context.Background(), "[UI_COMPLETION_IGNORED] Result for an office no longer selected", logging.Fields{
			"office_code": completion.OfficeCode,
			"selected":    c.state.SelectedOffice,
		})
		return false
	}

	c.state.Lines = completion.Lines
	c.state.Status = ""
	if completion.Err != nil {
		c.logger.Error(context.Background(), "[UI_FETCH_FAILED] Background fetch failed", logging.Fields{
			"office_code": completion.OfficeCode,
		}, completion.Err)
		c.state.Status = fetchFailedStatus
	}
	return true
}
