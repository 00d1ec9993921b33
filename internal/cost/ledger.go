package cost

import (
	"sync"

	"github.com/manash/pixshop/pkg/models"
)

// Charge is one billed AI call.
type Charge struct {
	Operation models.Operation `json:"operation"`
	Model     string           `json:"model"`
	Amount    float64          `json:"amount"`
}

// Models names the model each kind of call goes to.
type Models struct {
	Image  string
	Text   string
	Imagen string
}

func (m Models) forOperation(op models.Operation) string {
	switch op {
	case models.OpGenerateFromText:
		return m.Imagen
	case models.OpModel3D:
		return m.Text
	default:
		return m.Image
	}
}

// Ledger tallies the estimated spend of a REPL or server run.
type Ledger struct {
	mu      sync.Mutex
	calc    *Calculator
	models  Models
	charges []Charge
}

func NewLedger(calc *Calculator, m Models) *Ledger {
	if calc == nil {
		calc = NewCalculator()
	}
	if m.Image == "" {
		m.Image = models.DefaultImageModel
	}
	if m.Text == "" {
		m.Text = models.DefaultTextModel
	}
	if m.Imagen == "" {
		m.Imagen = models.DefaultImagenModel
	}
	return &Ledger{calc: calc, models: m}
}

// Record prices a successful image-producing call and returns the charge.
func (l *Ledger) Record(op models.Operation) Charge {
	model := l.models.forOperation(op)
	info := l.calc.Calculate(models.ProviderGemini, model, 1)
	return l.add(Charge{Operation: op, Model: model, Amount: info.Total})
}

// RecordMesh prices a 3D model call by the size of the returned mesh.
func (l *Ledger) RecordMesh(mesh *models.Mesh) Charge {
	model := l.models.forOperation(models.OpModel3D)
	info := l.calc.CalculateMesh(model, mesh)
	return l.add(Charge{Operation: models.OpModel3D, Model: model, Amount: info.Total})
}

func (l *Ledger) add(c Charge) Charge {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.charges = append(l.charges, c)
	return c
}

func (l *Ledger) Charges() []Charge {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Charge, len(l.charges))
	copy(out, l.charges)
	return out
}

func (l *Ledger) Total() *models.CostInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, c := range l.charges {
		total += c.Amount
	}
	info := &models.CostInfo{Total: total, Currency: CurrencyUSD}
	if len(l.charges) > 0 {
		info.PerImage = total / float64(len(l.charges))
	}
	return info
}

func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.charges = nil
}
