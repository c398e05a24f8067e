package ui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jma-forecast/internal/models"
	"jma-forecast/internal/services"
	"jma-forecast/pkg/logging"
)

type fakeCatalog struct{}

func (fakeCatalog) ListRegions(ctx context.Context) ([]models.Region, error) {
	return []models.Region{
		{Code: "010300", Name: "関東甲信地方"},
		{Code: "010600", Name: "近畿地方"},
	}, nil
}

func (fakeCatalog) ListOffices(ctx context.Context, regionCode string) ([]models.Office, error) {
	switch regionCode {
	case "010300":
		return []models.Office{{RegionCode: "010300", OfficeCode: "130000", Name: "東京都"}}, nil
	case "010600":
		return []models.Office{{RegionCode: "010600", OfficeCode: "270000", Name: "大阪府"}}, nil
	}
	return nil, nil
}

type fakeForecasts struct {
	results map[string]*services.DisplayResult
	called  chan string
	purged  []string
}

func (f *fakeForecasts) GetForecastDisplay(ctx context.Context, officeCode string) (*services.DisplayResult, error) {
	if f.called != nil {
		defer func() { f.called <- officeCode }()
	}
	if r, ok := f.results[officeCode]; ok {
		return r, nil
	}
	return nil, errors.New("storage down")
}

func (f *fakeForecasts) Purge(ctx context.Context, officeCode string) (int64, error) {
	f.purged = append(f.purged, officeCode)
	return 2, nil
}

func newTestConsole(forecasts *fakeForecasts, completions chan services.Completion, in io.Reader, out io.Writer) *Console {
	return NewConsole(fakeCatalog{}, forecasts, completions, in, out, logging.NewDiscardLogger())
}

func TestRender(t *testing.T) {
	out := Render(ViewState{
		Regions:        []models.Region{{Code: "010300", Name: "関東甲信地方"}},
		Offices:        []models.Office{{RegionCode: "010300", OfficeCode: "130000", Name: "東京都"}},
		SelectedRegion: "010300",
		SelectedOffice: "130000",
		Lines:          []string{"【東京地方】", "2024-01-01 17:00  天気: 晴れ  降水確率: 10%"},
	})

	want := strings.Join([]string{
		"=== 気象庁 天気予報 ===",
		"地方:",
		"  * 010300 関東甲信地方",
		"府県:",
		"  * 130000 東京都",
		"【東京都の天気】",
		"【東京地方】",
		"2024-01-01 17:00  天気: 晴れ  降水確率: 10%",
		helpLine,
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestRender_NothingSelected(t *testing.T) {
	out := Render(ViewState{
		Regions: []models.Region{{Code: "010300", Name: "関東甲信地方"}},
		Status:  "取得中...",
	})
	assert.Contains(t, out, "    010300 関東甲信地方")
	assert.NotContains(t, out, "府県:")
	assert.Contains(t, out, "[取得中...]")
}

func TestConsole_CommandsUpdateState(t *testing.T) {
	ctx := context.Background()
	forecasts := &fakeForecasts{results: map[string]*services.DisplayResult{
		"130000": {OfficeCode: "130000", Cached: true, Lines: []string{"【東京地方】"}},
		"270000": {OfficeCode: "270000", Pending: true},
	}}
	c := newTestConsole(forecasts, nil, strings.NewReader(""), io.Discard)
	c.state.Regions, _ = fakeCatalog{}.ListRegions(ctx)

	assert.False(t, c.handleCommand(ctx, "o 130000"))
	assert.Equal(t, "不明な府県コード: 130000", c.State().Status, "offices load with a region")

	c.handleCommand(ctx, "r 999999")
	assert.Equal(t, "不明な地方コード: 999999", c.State().Status)

	c.handleCommand(ctx, "r 010300")
	assert.Equal(t, "010300", c.State().SelectedRegion)
	require.Len(t, c.State().Offices, 1)

	c.handleCommand(ctx, "o 130000")
	assert.Equal(t, "130000", c.State().SelectedOffice)
	assert.Equal(t, []string{"【東京地方】"}, c.State().Lines)

	c.handleCommand(ctx, "purge")
	assert.Equal(t, []string{"130000"}, forecasts.purged)
	assert.Equal(t, "キャッシュを2件削除しました。", c.State().Status)

	c.handleCommand(ctx, "r 010600")
	assert.Empty(t, c.State().SelectedOffice)
	c.handleCommand(ctx, "o 270000")
	assert.Equal(t, "取得中...", c.State().Status)
	assert.Empty(t, c.State().Lines)

	c.handleCommand(ctx, "hello")
	assert.Equal(t, "不明なコマンド: hello", c.State().Status)

	assert.True(t, c.handleCommand(ctx, "q"))
}

func TestConsole_IgnoresCompletionForOtherOffice(t *testing.T) {
	c := newTestConsole(&fakeForecasts{}, nil, strings.NewReader(""), io.Discard)
	c.state.SelectedOffice = "270000"

	changed := c.applyCompletion(services.Completion{OfficeCode: "130000", Lines: []string{"【東京地方】"}})
	assert.False(t, changed)
	assert.Empty(t, c.State().Lines)

	changed = c.applyCompletion(services.Completion{
		OfficeCode: "270000",
		Lines:      []string{services.FailureMessage},
		Err:        errors.New("fetch forecast 270000: unexpected status 404 Not Found"),
	})
	assert.True(t, changed)
	assert.Equal(t, []string{services.FailureMessage}, c.State().Lines)
	assert.Equal(t, fetchFailedStatus, c.State().Status)
	assert.NotContains(t, c.State().Status, "404", "raw errors stay in the log")
}

func TestConsole_StorageErrorShowsFailure(t *testing.T) {
	ctx := context.Background()
	c := newTestConsole(&fakeForecasts{}, nil, strings.NewReader(""), io.Discard)
	c.state.Regions, _ = fakeCatalog{}.ListRegions(ctx)
	c.handleCommand(ctx, "r 010300")

	c.handleCommand(ctx, "o 130000")
	assert.Equal(t, []string{services.FailureMessage}, c.State().Lines)
}

func TestConsole_RunDrainsCompletions(t *testing.T) {
	forecasts := &fakeForecasts{
		results: map[string]*services.DisplayResult{"130000": {OfficeCode: "130000", Pending: true}},
		called:  make(chan string, 1),
	}
	completions := make(chan services.Completion)
	inReader, inWriter := io.Pipe()
	var out bytes.Buffer

	c := newTestConsole(forecasts, completions, inReader, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	_, err := io.WriteString(inWriter, "r 010300\no 130000\n")
	require.NoError(t, err)
	assert.Equal(t, "130000", <-forecasts.called)

	completions <- services.Completion{OfficeCode: "130000", Lines: []string{"【東京地方】", "2024-01-01 17:00  天気: 晴れ  降水確率: 10%"}}

	_, err = io.WriteString(inWriter, "q\n")
	require.NoError(t, err)

	require.NoError(t, <-errCh)
	inWriter.Close()

	assert.Equal(t, []string{"【東京地方】", "2024-01-01 17:00  天気: 晴れ  降水確率: 10%"}, c.State().Lines)
	assert.Contains(t, out.String(), "[取得中...]")
	assert.Contains(t, out.String(), "【東京都の天気】\n【東京地方】\n")
}
