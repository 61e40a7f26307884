package pipe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/alphaflow/pkg/discovery"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
	"github.com/logflow/alphaflow/pkg/parser"
)

// variantSep joins activities inside SQL; it cannot appear in a label read
// from a text log.
const variantSep = "\x1f"

// DuckDBPipeline computes trace variants inside DuckDB.
// For CSV and Parquet the grouping, ordering and counting happen in SQL and
// only the variant table crosses into Go. Other formats go through the Go
// parsers.
type DuckDBPipeline struct {
	cfg Config
	db  *sql.DB
}

// NewDuckDBPipeline opens an in-memory DuckDB database.
func NewDuckDBPipeline(cfg Config) (*DuckDBPipeline, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeQuery, "failed to open duckdb")
	}
	return &DuckDBPipeline{cfg: cfg, db: db}, nil
}

// Close releases the database.
func (p *DuckDBPipeline) Close() error {
	return p.db.Close()
}

// Variants returns the weighted traces of the log at path, most frequent
// first. FormatUnknown selects the format by extension.
func (p *DuckDBPipeline) Variants(ctx context.Context, path string, format parser.Format) ([]discovery.WeightedTrace, error) {
	if format == parser.FormatUnknown {
		f, err := parser.DetectFormat(path)
		if err != nil {
			return nil, lferrors.Wrap(err, lferrors.CodeInvalidFormat, "unsupported log file").
				WithContext("path", path)
		}
		format = f
	}

	var source string
	switch format {
	case parser.FormatCSV:
		// all_varchar leaves timestamp reading to eventsCTE so day-first
		// dates are never sniffed as month-first
		source = fmt.Sprintf("read_csv_auto(%s, header = true, all_varchar = true, delim = %s)",
			quoteLiteral(path), quoteLiteral(string(p.delimiter())))
	case parser.FormatParquet:
		source = fmt.Sprintf("read_parquet(%s)", quoteLiteral(path))
	default:
		res, err := NewPipeline(p.cfg).Load(ctx, path, format)
		if err != nil {
			return nil, err
		}
		return res.Log.Variants(), nil
	}

	if err := p.checkTimestamps(ctx, source, path); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, variantQuery(source, p.cfg.ParserConfig))
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeQuery, "variant query failed").WithContext("path", path)
	}
	defer rows.Close()

	var out []discovery.WeightedTrace
	for rows.Next() {
		var variant string
		var count int64
		if err := rows.Scan(&variant, &count); err != nil {
			return nil, lferrors.Wrap(err, lferrors.CodeQuery, "failed to scan variant")
		}
		out = append(out, discovery.WeightedTrace{
			Activities: strings.Split(variant, variantSep),
			Count:      count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeQuery, "variant query failed").WithContext("path", path)
	}
	if len(out) == 0 {
		return nil, lferrors.EmptyLog()
	}
	return out, nil
}

func (p *DuckDBPipeline) delimiter() byte {
	if d := p.cfg.ParserConfig.Delimiter; d != 0 {
		return d
	}
	return ','
}

// timestampFormats are the day-first and month-first layouts of the Go
// parsers that a plain cast to TIMESTAMP does not read.
var timestampFormats = []string{
	"%Y/%m/%d %H:%M:%S",
	"%d.%m.%Y %H:%M:%S",
	"%d.%m.%Y %H:%M",
	"%m/%d/%Y %H:%M:%S",
	"%m/%d/%Y",
}

// eventsCTE selects case, activity, timestamp in epoch milliseconds (NULL
// when unreadable), the raw timestamp text and the file position of every
// event that names a case and an activity.
func eventsCTE(source string, cfg parser.Config) string {
	formats := make([]string, len(timestampFormats))
	for i, f := range timestampFormats {
		formats[i] = quoteLiteral(f)
	}
	return fmt.Sprintf(`
		WITH raw AS (
			SELECT
				TRIM(CAST(%[1]s AS VARCHAR)) AS case_id,
				TRIM(CAST(%[2]s AS VARCHAR)) AS activity,
				TRIM(CAST(%[3]s AS VARCHAR)) AS ts_text,
				row_number() OVER () AS pos
			FROM %[4]s
		),
		events AS (
			SELECT
				case_id,
				activity,
				ts_text,
				pos,
				COALESCE(
					epoch_ms(TRY_CAST(ts_text AS TIMESTAMP)),
					epoch_ms(TRY_STRPTIME(ts_text, [%[5]s])),
					CAST(TRY_CAST(ts_text AS DOUBLE) * 1000 AS BIGINT)
				) AS ts
			FROM raw
			WHERE case_id IS NOT NULL AND case_id <> '' AND activity IS NOT NULL AND activity <> ''
		)`, quoteIdent(cfg.CaseIDColumn), quoteIdent(cfg.ActivityColumn), quoteIdent(cfg.TimestampColumn),
		source, strings.Join(formats, ", "))
}

// timestampCheckQuery counts events whose timestamp cannot be read and
// returns the first offending value.
func timestampCheckQuery(source string, cfg parser.Config) string {
	return eventsCTE(source, cfg) + `
		SELECT COUNT(*), COALESCE(arg_min(ts_text, pos), '')
		FROM events
		WHERE ts IS NULL`
}

// checkTimestamps fails like the streaming parsers do when any event has a
// missing or unreadable timestamp.
func (p *DuckDBPipeline) checkTimestamps(ctx context.Context, source, path string) error {
	var bad int64
	var first string
	err := p.db.QueryRowContext(ctx, timestampCheckQuery(source, p.cfg.ParserConfig)).Scan(&bad, &first)
	if err != nil {
		return lferrors.Wrap(err, lferrors.CodeQuery, "timestamp check failed").WithContext("path", path)
	}
	if bad > 0 {
		return lferrors.Newf(lferrors.CodeInvalidTimestamp, "invalid timestamp %q", first).
			WithContext("path", path).
			WithContext("events", bad)
	}
	return nil
}

// variantQuery orders each case by timestamp, then by file position, and
// counts identical activity sequences.
func variantQuery(source string, cfg parser.Config) string {
	return eventsCTE(source, cfg) + `,
		traces AS (
			SELECT STRING_AGG(activity, chr(31) ORDER BY ts, pos) AS variant
			FROM events
			GROUP BY case_id
		)
		SELECT variant, COUNT(*) AS cnt
		FROM traces
		GROUP BY variant
		ORDER BY cnt DESC, variant
	`
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
