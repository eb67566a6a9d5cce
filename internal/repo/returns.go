package repo

import (
	"context"
	"database/sql"

	"shelter/internal/domain"
)

const returnColumns = `r.id,r.adoption_id,r.reason,r.returned_at,r.processed_by`

type ReturnFilters struct {
	// UserID limits results to returns of the user's own adoptions.
	UserID string
}

func scanReturn(row interface{ Scan(...any) error }) (domain.Return, error) {
	var ret domain.Return
	var processedBy sql.NullString
	err := row.Scan(&ret.ID, &ret.AdoptionID, &ret.Reason, &ret.ReturnedAt, &processedBy)
	if err == sql.ErrNoRows {
		return ret, ErrNotFound
	}
	if err != nil {
		return ret, err
	}
	if processedBy.Valid && processedBy.String != "" {
		v := processedBy.String
		ret.ProcessedBy = &v
	}
	return ret, nil
}

func (r Repo) InsertReturn(ctx context.Context, tx *sql.Tx, ret domain.Return) error {
	_, err := r.exec(ctx, tx, `INSERT INTO returns(id,adoption_id,reason,returned_at,processed_by) VALUES (?,?,?,?,?)`,
		ret.ID, ret.AdoptionID, ret.Reason, ret.ReturnedAt, nullableStringPtr(ret.ProcessedBy))
	return err
}

func (r Repo) GetReturn(ctx context.Context, id string) (domain.Return, error) {
	return scanReturn(r.queryRow(ctx, nil, `SELECT `+returnColumns+` FROM returns r WHERE r.id=?`, id))
}

func (r Repo) GetReturnByAdoption(ctx context.Context, tx *sql.Tx, adoptionID string) (domain.Return, error) {
	return scanReturn(r.queryRow(ctx, tx, `SELECT `+returnColumns+` FROM returns r WHERE r.adoption_id=?`, adoptionID))
}

func (r Repo) HasReturn(ctx context.Context, tx *sql.Tx, adoptionID string) (bool, error) {
	var n int
	err := r.queryRow(ctx, tx, `SELECT COUNT(*) FROM returns WHERE adoption_id=?`, adoptionID).Scan(&n)
	return n > 0, err
}

func (r Repo) ListReturns(ctx context.Context, f ReturnFilters) ([]domain.Return, error) {
	query := `SELECT ` + returnColumns + ` FROM returns r`
	var args []any
	if f.UserID != "" {
		query += ` JOIN adoptions a ON a.id = r.adoption_id WHERE a.user_id=?`
		args = append(args, f.UserID)
	}
	query += ` ORDER BY r.returned_at DESC, r.id DESC`
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Return
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ret)
	}
	return res, rows.Err()
}

func (r Repo) DeleteReturn(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM returns WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
