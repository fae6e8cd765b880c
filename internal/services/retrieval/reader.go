package retrieval

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"commission-conciliation-backend/internal/models"
	"commission-conciliation-backend/internal/services/matching"
)

// Reader derives a job's external record set from the CSV exports the
// retrieval adapter deposited under <root>/<job id>/<agent id>/.
type Reader struct {
	root string
}

func NewReader(root string) *Reader {
	return &Reader{root: root}
}

// JobDir is the directory holding everything deposited for a job.
func (r *Reader) JobDir(job *models.ConciliationJob) string {
	return filepath.Join(r.root, job.ID.String())
}

// ReadExternalRows parses every deposited export for the job's agents into
// external rows. Missing agent directories are skipped: an agent whose
// retrieval failed simply contributes no rows.
func (r *Reader) ReadExternalRows(job *models.ConciliationJob) ([]matching.ExternalRow, error) {
	var rows []matching.ExternalRow
	for _, agent := range job.Agents {
		dir := filepath.Join(r.JobDir(job), agent)
		files, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to read export directory for agent %s", agent)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(strings.ToLower(f.Name()), ".csv") {
				continue
			}
			fileRows, err := readExportFile(filepath.Join(dir, f.Name()), job.Provider, agent)
			if err != nil {
				return nil, err
			}
			rows = append(rows, fileRows...)
		}
	}
	return rows, nil
}

func readExportFile(path string, provider models.Provider, agent string) ([]matching.ExternalRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open export file %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse export file %s", path)
	}

	var rows []matching.ExternalRow
	for _, record := range records {
		row, ok := parseRecord(record, provider, agent)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Column layouts of the raw exports, per provider. Rows that do not fit the
// layout (headings, totals, decoration) are dropped.
func parseRecord(record []string, provider models.Provider, agent string) (matching.ExternalRow, bool) {
	switch provider {
	case models.ProviderQualitas:
		// dia, poliza, endoso, recibo, serie, remesa, cve, concepto,
		// importe, comis, iva_pag, isr_r, iva_r, cargo, abono
		if len(record) != 15 {
			return matching.ExternalRow{}, false
		}
		if !isNumeric(record[1]) && record[6] != "CGR" {
			return matching.ExternalRow{}, false
		}
		return matching.ExternalRow{
			Day:         record[0],
			Policy:      record[1],
			Endorsement: record[2],
			Receipt:     record[3],
			Series:      record[4],
			Concept:     record[7],
			Amount:      parseAmount(record[8]),
			Commission:  parseAmount(record[9]),
			Charge:      parseAmount(record[13]),
			Agent:       agent,
		}, true
	case models.ProviderHDI:
		// divisa, fecha, ramo, poliza, certificado, endoso, recibo, serie,
		// concepto, base_comision, extra_comision, cesion_comision,
		// modulo_comision, cargo, abono
		if len(record) != 15 {
			return matching.ExternalRow{}, false
		}
		row := matching.ExternalRow{
			Currency:    record[0],
			Day:         record[1],
			Branch:      record[2],
			Policy:      record[3],
			Endorsement: record[5],
			Receipt:     record[6],
			Series:      record[7],
			Concept:     record[8],
			Amount:      parseAmount(record[9]),
			Charge:      parseAmount(record[13]),
			Commission:  parseAmount(record[14]),
			Agent:       agent,
		}
		if row.Charge == 0 && row.Commission == 0 && row.Day == "" {
			return matching.ExternalRow{}, false
		}
		return row, true
	case models.ProviderChubb:
		// tipo_mov, agente_id, asegurado_id, ramo, dia, clave_id, poliza,
		// endoso, recibo, serie, inciso_id, importe, comis,
		// comis_sobre_recargo, comis2, iva_r, concepto, ...
		if len(record) < 17 {
			return matching.ExternalRow{}, false
		}
		return matching.ExternalRow{
			Branch:          record[3],
			Day:             record[4],
			ClassKey:        record[5],
			Policy:          record[6],
			Endorsement:     record[7],
			Receipt:         record[8],
			Series:          record[9],
			Amount:          parseAmount(record[11]),
			Commission:      parseAmount(record[12]),
			Surcharge:       parseAmount(record[13]),
			ExtraCommission: parseAmount(record[14]),
			Concept:         record[16],
			Agent:           agent,
		}, true
	default:
		return matching.ExternalRow{}, false
	}
}

func parseAmount(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil && strings.TrimSpace(s) != ""
}
