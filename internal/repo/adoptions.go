package repo

import (
	"context"
	"database/sql"
	"strings"

	"shelter/internal/domain"
)

const adoptionColumns = `id,user_id,animal_id,status,submitted_at,rejection_reason`

type AdoptionFilters struct {
	UserID   string
	AnimalID string
	Status   string
	Limit    int
	// Cursor fields page backwards by submission time, newest first.
	CursorSubmittedAt string
	CursorID          string
}

func scanAdoption(row interface{ Scan(...any) error }) (domain.Adoption, error) {
	var a domain.Adoption
	err := row.Scan(&a.ID, &a.UserID, &a.AnimalID, &a.Status, &a.SubmittedAt, &a.RejectionReason)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertAdoption(ctx context.Context, tx *sql.Tx, a domain.Adoption) error {
	_, err := r.exec(ctx, tx, `INSERT INTO adoptions(`+adoptionColumns+`) VALUES (?,?,?,?,?,?)`,
		a.ID, a.UserID, a.AnimalID, a.Status, a.SubmittedAt, a.RejectionReason)
	return err
}

func (r Repo) GetAdoption(ctx context.Context, id string) (domain.Adoption, error) {
	return scanAdoption(r.queryRow(ctx, nil, `SELECT `+adoptionColumns+` FROM adoptions WHERE id=?`, id))
}

// LockAdoption reads the adoption inside tx, holding a row lock where the
// driver supports one.
func (r Repo) LockAdoption(ctx context.Context, tx *sql.Tx, id string) (domain.Adoption, error) {
	return scanAdoption(r.queryRow(ctx, tx, `SELECT `+adoptionColumns+` FROM adoptions WHERE id=?`+r.DB.ForUpdate(), id))
}

// LockApprovedByUser reads the user's approved adoptions inside tx.
func (r Repo) LockApprovedByUser(ctx context.Context, tx *sql.Tx, userID string) ([]domain.Adoption, error) {
	rows, err := r.query(ctx, tx, `SELECT `+adoptionColumns+` FROM adoptions WHERE user_id=? AND status=? ORDER BY id`+r.DB.ForUpdate(),
		userID, domain.AdoptionApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Adoption
	for rows.Next() {
		a, err := scanAdoption(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) AdoptionExists(ctx context.Context, tx *sql.Tx, userID, animalID string) (bool, error) {
	var n int
	err := r.queryRow(ctx, tx, `SELECT COUNT(*) FROM adoptions WHERE user_id=? AND animal_id=?`, userID, animalID).Scan(&n)
	return n > 0, err
}

func (r Repo) ListAdoptions(ctx context.Context, f AdoptionFilters) ([]domain.Adoption, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.AnimalID != "" {
		clauses = append(clauses, "animal_id=?")
		args = append(args, f.AnimalID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorSubmittedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(submitted_at < ? OR (submitted_at = ? AND id < ?))")
		args = append(args, f.CursorSubmittedAt, f.CursorSubmittedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + adoptionColumns + ` FROM adoptions ` + where + ` ORDER BY submitted_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Adoption
	for rows.Next() {
		a, err := scanAdoption(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ReturnableAdoptions lists the user's approved adoptions that have no return yet.
func (r Repo) ReturnableAdoptions(ctx context.Context, userID string) ([]domain.Adoption, error) {
	rows, err := r.query(ctx, nil, `SELECT a.id,a.user_id,a.animal_id,a.status,a.submitted_at,a.rejection_reason
FROM adoptions a LEFT JOIN returns r ON r.adoption_id = a.id
WHERE a.user_id=? AND a.status=? AND r.id IS NULL
ORDER BY a.submitted_at DESC, a.id DESC`, userID, domain.AdoptionApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Adoption
	for rows.Next() {
		a, err := scanAdoption(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateAdoptionStatus(ctx context.Context, tx *sql.Tx, id, status, reason string) error {
	res, err := r.exec(ctx, tx, `UPDATE adoptions SET status=?, rejection_reason=? WHERE id=?`, status, reason, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// RejectPendingSiblings rejects every other pending adoption of the animal
// with the given reason and returns the ids it touched.
func (r Repo) RejectPendingSiblings(ctx context.Context, tx *sql.Tx, animalID, exceptID, reason string) ([]string, error) {
	rows, err := r.query(ctx, tx, `SELECT id FROM adoptions WHERE animal_id=? AND status=? AND id<>? ORDER BY id`,
		animalID, domain.AdoptionPending, exceptID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := r.exec(ctx, tx, `UPDATE adoptions SET status=?, rejection_reason=? WHERE animal_id=? AND status=? AND id<>?`,
		domain.AdoptionRejected, reason, animalID, domain.AdoptionPending, exceptID); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r Repo) CountApprovedForAnimal(ctx context.Context, tx *sql.Tx, animalID string) (int, error) {
	var n int
	err := r.queryRow(ctx, tx, `SELECT COUNT(*) FROM adoptions WHERE animal_id=? AND status=?`, animalID, domain.AdoptionApproved).Scan(&n)
	return n, err
}

func (r Repo) DeleteAdoption(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM adoptions WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
