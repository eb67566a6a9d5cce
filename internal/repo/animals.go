package repo

import (
	"context"
	"database/sql"
	"strings"

	"shelter/internal/domain"
)

const animalColumns = `id,name,species,breed,age_years,age_months,health_status,description,status,created_at`

type AnimalFilters struct {
	Species string
	Status  string
}

func scanAnimal(row interface{ Scan(...any) error }) (domain.Animal, error) {
	var a domain.Animal
	err := row.Scan(&a.ID, &a.Name, &a.Species, &a.Breed, &a.AgeYears, &a.AgeMonths, &a.HealthStatus, &a.Description, &a.Status, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertAnimal(ctx context.Context, tx *sql.Tx, a domain.Animal) error {
	_, err := r.exec(ctx, tx, `INSERT INTO animals(`+animalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Species, a.Breed, a.AgeYears, a.AgeMonths, a.HealthStatus, a.Description, a.Status, a.CreatedAt)
	return err
}

func (r Repo) GetAnimal(ctx context.Context, id string) (domain.Animal, error) {
	return r.GetAnimalTx(ctx, nil, id)
}

func (r Repo) GetAnimalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Animal, error) {
	return scanAnimal(r.queryRow(ctx, tx, `SELECT `+animalColumns+` FROM animals WHERE id=?`, id))
}

// LockAnimal reads the animal row under the transaction's write lock.
func (r Repo) LockAnimal(ctx context.Context, tx *sql.Tx, id string) (domain.Animal, error) {
	return scanAnimal(r.queryRow(ctx, tx, `SELECT `+animalColumns+` FROM animals WHERE id=?`+r.DB.ForUpdate(), id))
}

func (r Repo) ListAnimals(ctx context.Context, f AnimalFilters) ([]domain.Animal, error) {
	var clauses []string
	var args []any
	if f.Species != "" {
		clauses = append(clauses, "species=?")
		args = append(args, f.Species)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.query(ctx, nil, `SELECT `+animalColumns+` FROM animals `+where+` ORDER BY name ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateAnimalProfile writes every descriptive field. Status is not touched here.
func (r Repo) UpdateAnimalProfile(ctx context.Context, tx *sql.Tx, a domain.Animal) error {
	res, err := r.exec(ctx, tx, `UPDATE animals SET name=?,species=?,breed=?,age_years=?,age_months=?,health_status=?,description=? WHERE id=?`,
		a.Name, a.Species, a.Breed, a.AgeYears, a.AgeMonths, a.HealthStatus, a.Description, a.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// SwapAnimalStatus moves the animal from one status to another only if it is
// still in the expected status. It reports whether the swap happened.
func (r Repo) SwapAnimalStatus(ctx context.Context, tx *sql.Tx, id, from, to string) (bool, error) {
	res, err := r.exec(ctx, tx, `UPDATE animals SET status=? WHERE id=? AND status=?`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) DeleteAnimal(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM animals WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
