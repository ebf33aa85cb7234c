package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"yashubustudio/obdresolver/assets"
	"yashubustudio/obdresolver/resolver"
)

func main() {
	fyneApp := app.NewWithID("yashubustudio.obdresolver")
	win := fyneApp.NewWindow("OBD-II Intent Resolver")
	win.Resize(fyne.NewSize(900, 640))

	if err := resolver.LoadEnv(); err != nil {
		showFatalError(win, err)
		return
	}
	cfg, err := resolver.LoadConfig("")
	if err != nil {
		showFatalError(win, fmt.Errorf("load config: %w", err))
		return
	}
	if err := cfg.ApplyEnv(); err != nil {
		showFatalError(win, fmt.Errorf("apply env: %w", err))
		return
	}

	loggerBinding := binding.NewString()
	logCapture := newLogCapture(loggerBinding, 300)
	logger := log.New(io.MultiWriter(os.Stdout, logCapture), "", log.LstdFlags)

	corpus := resolver.DefaultCorpus()
	if cfg.CorpusPath != "" {
		corpus, err = resolver.LoadCorpus(cfg.CorpusPath)
		if err != nil {
			showFatalError(win, err)
			return
		}
	}
	r, err := resolver.New(cfg, corpus, resolver.OrtOpener(cfg.Embedder), logger)
	if err != nil {
		showFatalError(win, fmt.Errorf("init resolver: %w", err))
		return
	}
	defer r.Close()
	ctx := context.Background()

	statusBinding := binding.NewString()
	_ = statusBinding.Set("Starting...")
	codeBinding := binding.NewString()
	progressBinding := binding.NewFloat()

	var (
		tableMu   sync.Mutex
		tableData = [][]string{{"phrase", "code", "score"}}
	)
	resultTable := widget.NewTable(
		func() (int, int) {
			tableMu.Lock()
			defer tableMu.Unlock()
			return len(tableData), len(tableData[0])
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			tableMu.Lock()
			defer tableMu.Unlock()
			if id.Row >= len(tableData) || id.Col >= len(tableData[id.Row]) {
				return
			}
			label := obj.(*widget.Label)
			label.TextStyle = fyne.TextStyle{Bold: id.Row == 0}
			label.SetText(tableData[id.Row][id.Col])
		},
	)
	resultTable.SetColumnWidth(0, 420)
	resultTable.SetColumnWidth(1, 90)
	resultTable.SetColumnWidth(2, 90)

	queryEntry := widget.NewEntry()
	queryEntry.SetPlaceHolder("Ask about the vehicle, e.g. \"is the check engine light on?\"")

	var resolveBtn *widget.Button
	resolveBtn = widget.NewButton("Resolve", func() {
		query := strings.TrimSpace(queryEntry.Text)
		if query == "" {
			return
		}
		go func() {
			res, err := r.ResolveAsync(ctx, query).Await(ctx)
			if err != nil {
				fyne.Do(func() { showError(win, err) })
				return
			}
			if res.Code == resolver.NoMatch {
				logger.Printf("[%s] no command matched, forwarding to dialogue", res.RequestID)
				return
			}
			logger.Printf("[%s] sending %s to vehicle", res.RequestID, res.Code)
		}()
	})
	resolveBtn.Disable()
	queryEntry.OnSubmitted = func(string) {
		if !resolveBtn.Disabled() {
			resolveBtn.OnTapped()
		}
	}

	cancelSub := r.Subscribe(func(st resolver.State) {
		rows := buildTableData(st.Results)
		status := formatStatus(st)
		fyne.Do(func() {
			tableMu.Lock()
			tableData = rows
			tableMu.Unlock()
			resultTable.Refresh()
			_ = statusBinding.Set(status)
			_ = codeBinding.Set(st.BestCode)
			if r.Ready() && st.Status != resolver.StatusLoading {
				resolveBtn.Enable()
			} else {
				resolveBtn.Disable()
			}
		})
	})
	defer cancelSub()

	initialize := func() {
		go func() {
			if err := r.Initialize(ctx); err != nil {
				fyne.Do(func() { showError(win, err) })
			}
		}()
	}

	var fetchBtn *widget.Button
	fetchBtn = widget.NewButton("Download model", func() {
		fetchBtn.Disable()
		d := assets.NewDownloader(logger, func(p assets.Progress) {
			if p.Total > 0 {
				_ = progressBinding.Set(float64(p.Done) / float64(p.Total))
			}
		})
		go func() {
			err := d.Ensure(ctx, assets.FilesFor(cfg.Embedder, cfg.Assets)...)
			fyne.Do(func() {
				fetchBtn.Enable()
				if err != nil {
					showError(win, err)
					return
				}
				_ = progressBinding.Set(1)
				if !r.Ready() {
					initialize()
				}
			})
		}()
	})

	logLabel := widget.NewLabelWithData(loggerBinding)
	logLabel.Wrapping = fyne.TextWrapWord
	logContainer := container.NewVScroll(logLabel)
	logContainer.SetMinSize(fyne.NewSize(200, 140))

	codeLabel := widget.NewLabelWithData(codeBinding)
	codeLabel.TextStyle = fyne.TextStyle{Bold: true}

	top := container.NewVBox(
		container.NewBorder(nil, nil, nil, resolveBtn, queryEntry),
		container.NewHBox(widget.NewLabel("Status:"), widget.NewLabelWithData(statusBinding)),
		container.NewHBox(widget.NewLabel("Command:"), codeLabel),
		container.NewHBox(
			widget.NewLabel(fmt.Sprintf("Threshold: %.2f", cfg.MinScore())),
			widget.NewLabel(fmt.Sprintf("Phrases: %d / Codes: %d", corpus.Len(), len(corpus.Codes()))),
		),
	)
	bottom := container.NewVBox(
		widget.NewSeparator(),
		container.NewBorder(nil, nil, fetchBtn, nil, widget.NewProgressBarWithData(progressBinding)),
		widget.NewLabel("Log"),
		logContainer,
	)
	win.SetContent(container.NewBorder(top, bottom, nil, nil, resultTable))
	win.SetOnClosed(func() { _ = r.Close() })

	missing := false
	for _, f := range assets.FilesFor(cfg.Embedder, cfg.Assets) {
		if !assets.Present(f.Path) {
			missing = true
			logger.Printf("%s not found at %s; use \"Download model\" to fetch it", f.Name, f.Path)
		}
	}
	if missing {
		_ = statusBinding.Set("Model files missing")
	} else {
		initialize()
	}

	win.ShowAndRun()
}

func formatStatus(st resolver.State) string {
	switch st.Status {
	case resolver.StatusLoading:
		if st.Query == "" {
			return "Loading model..."
		}
		return fmt.Sprintf("Resolving %q...", st.Query)
	case resolver.StatusSuccess:
		return fmt.Sprintf("%d match(es) for %q", len(st.Results), st.Query)
	case resolver.StatusError:
		return "Error: " + st.Message
	}
	return "Ready"
}

func buildTableData(results []resolver.SimilarityResult) [][]string {
	data := make([][]string, 1, len(results)+1)
	data[0] = []string{"phrase", "code", "score"}
	for _, res := range results {
		data = append(data, []string{res.Phrase, res.Code, fmt.Sprintf("%.3f", res.Score)})
	}
	return data
}

func showFatalError(win fyne.Window, err error) {
	content := widget.NewLabel(err.Error())
	win.SetContent(content)
	dialog.ShowError(err, win)
	win.ShowAndRun()
}

func showError(win fyne.Window, err error) {
	if err == nil {
		return
	}
	var initErr *resolver.InitError
	if errors.As(err, &initErr) {
		err = fmt.Errorf("the embedding model could not be loaded: %w", err)
	}
	dialog.ShowError(err, win)
}
