package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cory-johannsen/charstats/internal/game/character"
	"github.com/cory-johannsen/charstats/internal/game/effect"
)

// ErrCharacterNotFound is returned when a character lookup yields no results.
var ErrCharacterNotFound = errors.New("character not found")

// ErrCharacterExists is returned when creating a character whose ID is already stored.
var ErrCharacterExists = errors.New("character already exists")

const characterColumns = `id, template_id, name, prefab, invulnerable, is_dead,
	position, rotation, visual, npc, attributes, skills, clock_ns, created_at, updated_at`

// StoredCharacter is a character row together with the statistics state saved for it.
type StoredCharacter struct {
	Character *character.Character
	Snapshot  character.Snapshot
}

// CharacterRepository provides character persistence operations.
type CharacterRepository struct {
	pool *Pool
}

// NewCharacterRepository creates a CharacterRepository backed by the given pool.
//
// Precondition: pool must be a valid, open connection pool.
func NewCharacterRepository(pool *Pool) *CharacterRepository {
	return &CharacterRepository{pool: pool}
}

// Create inserts a new character with an empty effect list and a zero clock.
//
// Precondition: c.ID and c.Name must be non-empty.
// Postcondition: Returns the stored character with timestamps set, or ErrCharacterExists on duplicate ID.
func (r *CharacterRepository) Create(ctx context.Context, c *character.Character) (*character.Character, error) {
	if c.ID == "" || c.Name == "" {
		return nil, errors.New("character id and name must be non-empty")
	}
	row := r.pool.DB().QueryRow(ctx, `
		INSERT INTO characters
			(id, template_id, name, prefab, invulnerable, is_dead,
			 position, rotation, visual, npc, attributes, skills)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+characterColumns,
		characterArgs(c)...,
	)
	out, _, err := scanCharacter(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrCharacterExists
		}
		return nil, fmt.Errorf("inserting character: %w", err)
	}
	return out, nil
}

// GetByID retrieves a character row by its primary key.
//
// Postcondition: Returns the Character or ErrCharacterNotFound.
func (r *CharacterRepository) GetByID(ctx context.Context, id string) (*character.Character, error) {
	row := r.pool.DB().QueryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = $1`, id)
	c, _, err := scanCharacter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("querying character: %w", err)
	}
	return c, nil
}

// List returns every stored character, ordered by created_at then id.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *CharacterRepository) List(ctx context.Context) ([]*character.Character, error) {
	rows, err := r.pool.DB().Query(ctx, `SELECT `+characterColumns+` FROM characters ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	chars := make([]*character.Character, 0)
	for rows.Next() {
		c, _, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

// Delete removes a character and its saved effects.
//
// Postcondition: Returns nil on success, ErrCharacterNotFound if no row was deleted.
func (r *CharacterRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.DB().Exec(ctx, `DELETE FROM characters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}

// SaveSnapshot upserts c together with the clock, base stats and active
// effects of s in one transaction. Effects previously saved for c are replaced.
//
// Precondition: c.ID must be non-empty.
// Postcondition: LoadSnapshot(c.ID) returns a Snapshot equal to s.
func (r *CharacterRepository) SaveSnapshot(ctx context.Context, c *character.Character, s character.Snapshot) error {
	if c.ID == "" {
		return errors.New("character id must be non-empty")
	}
	saved := *c
	saved.Attributes = s.Attributes
	saved.Skills = s.Skills

	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		args := append(characterArgs(&saved), int64(s.Clock))
		if _, err := tx.Exec(ctx, `
			INSERT INTO characters
				(id, template_id, name, prefab, invulnerable, is_dead,
				 position, rotation, visual, npc, attributes, skills, clock_ns)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (id) DO UPDATE SET
				template_id  = EXCLUDED.template_id,
				name         = EXCLUDED.name,
				prefab       = EXCLUDED.prefab,
				invulnerable = EXCLUDED.invulnerable,
				is_dead      = EXCLUDED.is_dead,
				position     = EXCLUDED.position,
				rotation     = EXCLUDED.rotation,
				visual       = EXCLUDED.visual,
				npc          = EXCLUDED.npc,
				attributes   = EXCLUDED.attributes,
				skills       = EXCLUDED.skills,
				clock_ns     = EXCLUDED.clock_ns,
				updated_at   = NOW()`,
			args...,
		); err != nil {
			return fmt.Errorf("upserting character %s: %w", c.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM character_effects WHERE character_id = $1`, c.ID); err != nil {
			return fmt.Errorf("clearing effects of %s: %w", c.ID, err)
		}
		if len(s.Effects) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(s.Effects))
		for i, e := range s.Effects {
			rows = append(rows, []any{
				c.ID, int32(i), e.ID, e.Name, e.Target.String(), int64(e.Magnitude),
				e.Lifetime.String(), e.Periodic, int64(e.Duration),
				int64(e.AddedAt()), int64(e.LastAppliedAt()),
				e.OnApplyHook, e.OnRemoveHook,
			})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"character_effects"},
			[]string{
				"character_id", "position", "effect_id", "name", "target", "magnitude",
				"lifetime", "periodic", "duration_ns", "added_ns", "last_applied_ns",
				"on_apply_hook", "on_remove_hook",
			},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copying effects of %s: %w", c.ID, err)
		}
		return nil
	})
}

// LoadSnapshot retrieves a character and the statistics state last saved for it.
//
// Postcondition: Returns the character and snapshot, ErrCharacterNotFound, or
// an error if a stored effect cannot be decoded.
func (r *CharacterRepository) LoadSnapshot(ctx context.Context, id string) (*character.Character, character.Snapshot, error) {
	row := r.pool.DB().QueryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = $1`, id)
	c, clock, err := scanCharacter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, character.Snapshot{}, ErrCharacterNotFound
		}
		return nil, character.Snapshot{}, fmt.Errorf("querying character: %w", err)
	}
	byChar, err := r.loadEffects(ctx, `WHERE character_id = $1`, id)
	if err != nil {
		return nil, character.Snapshot{}, err
	}
	return c, snapshotOf(c, clock, byChar[id]), nil
}

// LoadAll retrieves every stored character with its saved statistics state,
// ordered by created_at then id.
func (r *CharacterRepository) LoadAll(ctx context.Context) ([]StoredCharacter, error) {
	rows, err := r.pool.DB().Query(ctx, `SELECT `+characterColumns+` FROM characters ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	type loaded struct {
		c     *character.Character
		clock time.Duration
	}
	var chars []loaded
	for rows.Next() {
		c, clock, err := scanCharacter(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		chars = append(chars, loaded{c, clock})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}

	byChar, err := r.loadEffects(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]StoredCharacter, 0, len(chars))
	for _, l := range chars {
		out = append(out, StoredCharacter{Character: l.c, Snapshot: snapshotOf(l.c, l.clock, byChar[l.c.ID])})
	}
	return out, nil
}

func (r *CharacterRepository) loadEffects(ctx context.Context, where string, args ...any) (map[string][]effect.StatusEffect, error) {
	rows, err := r.pool.DB().Query(ctx, `
		SELECT character_id, effect_id, name, target, magnitude, lifetime, periodic,
		       duration_ns, added_ns, last_applied_ns, on_apply_hook, on_remove_hook
		FROM character_effects `+where+`
		ORDER BY character_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying effects: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]effect.StatusEffect)
	for rows.Next() {
		var (
			charID, target, lifetime string
			magnitude                int64
			duration, added, applied int64
			e                        effect.StatusEffect
		)
		if err := rows.Scan(&charID, &e.ID, &e.Name, &target, &magnitude, &lifetime, &e.Periodic,
			&duration, &added, &applied, &e.OnApplyHook, &e.OnRemoveHook); err != nil {
			return nil, fmt.Errorf("scanning effect row: %w", err)
		}
		if e.Target, err = effect.ParseTarget(target); err != nil {
			return nil, fmt.Errorf("effect %q of %s: %w", e.ID, charID, err)
		}
		if e.Lifetime, err = effect.ParseLifetime(lifetime); err != nil {
			return nil, fmt.Errorf("effect %q of %s: %w", e.ID, charID, err)
		}
		e.Magnitude = int(magnitude)
		e.Duration = time.Duration(duration)
		out[charID] = append(out[charID], effect.Restored(e, time.Duration(added), time.Duration(applied)))
	}
	return out, rows.Err()
}

func snapshotOf(c *character.Character, clock time.Duration, effects []effect.StatusEffect) character.Snapshot {
	s := character.Snapshot{
		Clock:      clock,
		Attributes: make(map[string]int, len(c.Attributes)),
		Skills:     make(map[string]int, len(c.Skills)),
		Effects:    effects,
	}
	for k, v := range c.Attributes {
		s.Attributes[k] = v
	}
	for k, v := range c.Skills {
		s.Skills[k] = v
	}
	return s
}

func characterArgs(c *character.Character) []any {
	attrs, skills := c.Attributes, c.Skills
	if attrs == nil {
		attrs = map[string]int{}
	}
	if skills == nil {
		skills = map[string]int{}
	}
	return []any{
		c.ID, c.TemplateID, c.Name, c.Prefab, c.Invulnerable, c.IsDead,
		c.Position, c.Rotation, c.Visual, c.NPC, attrs, skills,
	}
}

func scanCharacter(row pgx.Row) (*character.Character, time.Duration, error) {
	var (
		c     character.Character
		clock int64
	)
	err := row.Scan(
		&c.ID, &c.TemplateID, &c.Name, &c.Prefab, &c.Invulnerable, &c.IsDead,
		&c.Position, &c.Rotation, &c.Visual, &c.NPC, &c.Attributes, &c.Skills,
		&clock, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	return &c, time.Duration(clock), nil
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
