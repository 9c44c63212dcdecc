package handlers

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"sourcetrader/internal/models"
	"sourcetrader/internal/service"
	"sourcetrader/pkg/utils"
)

// adminSignalsLimit - сколько сигналов показывает страница
const adminSignalsLimit = 50

var adminPage = template.Must(template.New("admin").Funcs(template.FuncMap{
	"price": utils.FormatPrice,
	"ref": func(id *int64) string {
		if id == nil {
			return ""
		}
		return strconv.FormatInt(*id, 10)
	},
	"pnl": func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(utils.RoundTo(*p, 2), 'f', -1, 64)
	},
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Admin</title>
<style>
body {font-family: sans-serif; padding: 20px;}
table {border-collapse: collapse; width: 100%;}
td, th {border: 1px solid #ccc; padding: 6px; font-size: 14px; text-align: center;}
</style>
</head><body>
<h2>Latest signals</h2>
<table>
<tr><th>ID</th><th>Symbol</th><th>Side</th><th>Price</th><th>Time</th><th>Ref</th><th>PNL%</th><th>ClosedAt</th></tr>
{{range .}}<tr><td>{{.ID}}</td><td>{{.Symbol}}</td><td>{{.Side}}</td><td>{{price .Price}}</td><td>{{.Time}}</td><td>{{ref .RefOpenID}}</td><td>{{pnl .PnlPct}}</td><td>{{.ClosedAt}}</td></tr>
{{end}}</table>
</body></html>
`))

// adminRow - сигнал с датами в часовом поясе отображения
type adminRow struct {
	ID        int64
	Symbol    string
	Side      models.Side
	Price     float64
	Time      string
	RefOpenID *int64
	PnlPct    *float64
	ClosedAt  string
}

// AdminHandler - простая HTML-страница с последними сигналами.
//
// Endpoints:
// - GET /admin?token=...
type AdminHandler struct {
	signalService service.SignalServiceInterface
	location      *time.Location
}

// NewAdminHandler создает AdminHandler
func NewAdminHandler(signalService service.SignalServiceInterface, loc *time.Location) *AdminHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminHandler{signalService: signalService, location: loc}
}

func (h *AdminHandler) formatTime(t time.Time) string {
	return t.In(h.location).Format("2006/01/02 15:04")
}

// Page рендерит таблицу последних сигналов
func (h *AdminHandler) Page(w http.ResponseWriter, r *http.Request) {
	if h.signalService == nil {
		http.Error(w, "signal service not initialized", http.StatusInternalServerError)
		return
	}

	signals, err := h.signalService.Recent(r.Context(), adminSignalsLimit)
	if err != nil {
		http.Error(w, "failed to load signals", http.StatusInternalServerError)
		return
	}

	rows := make([]adminRow, 0, len(signals))
	for _, s := range signals {
		row := adminRow{
			ID:        s.ID,
			Symbol:    s.Symbol,
			Side:      s.Side,
			Price:     s.Price,
			Time:      h.formatTime(s.Time),
			RefOpenID: s.RefOpenID,
			PnlPct:    s.PnlPct,
		}
		if s.ClosedAt != nil {
			row.ClosedAt = h.formatTime(*s.ClosedAt)
		}
		rows = append(rows, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	adminPage.Execute(w, rows)
}

// AdminForbidden - ответ страницы при неверном токене
func AdminForbidden(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte("<h3>Forbidden</h3>"))
}
