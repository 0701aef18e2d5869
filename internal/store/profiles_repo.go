package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"postpilot/internal/core"
)

var ErrProfileNotFound = errors.New("profile not found")

// UpsertProfile stores the business profile keyed by user.
func (s *Store) UpsertProfile(ctx context.Context, p *core.BusinessProfile) error {
	p.UpdatedAt = time.Now().UTC()
	products := p.Products
	if products == nil {
		products = []string{}
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	platforms, err := encodePlatforms(p.PreferredPlatforms)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO profiles (user_id, business_name, industry, description, products, target_audience,
			brand_tone, brand_style, website, phone, email, preferred_platforms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			business_name = excluded.business_name,
			industry = excluded.industry,
			description = excluded.description,
			products = excluded.products,
			target_audience = excluded.target_audience,
			brand_tone = excluded.brand_tone,
			brand_style = excluded.brand_style,
			website = excluded.website,
			phone = excluded.phone,
			email = excluded.email,
			preferred_platforms = excluded.preferred_platforms,
			updated_at = excluded.updated_at
	`, p.UserID, p.BusinessName, p.Industry, p.Description, string(productsJSON), p.TargetAudience,
		p.BrandVoice.Tone, p.BrandVoice.Style, p.Website, p.Phone, p.Email, platforms, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*core.BusinessProfile, error) {
	var (
		p         core.BusinessProfile
		products  string
		platforms string
		updatedAt string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT user_id, business_name, industry, description, products, target_audience,
			brand_tone, brand_style, website, phone, email, preferred_platforms, updated_at
		FROM profiles WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.BusinessName, &p.Industry, &p.Description, &products, &p.TargetAudience,
		&p.BrandVoice.Tone, &p.BrandVoice.Style, &p.Website, &p.Phone, &p.Email, &platforms, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if err := json.Unmarshal([]byte(products), &p.Products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	if p.PreferredPlatforms, err = decodePlatforms(platforms); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return expectRow(res, ErrProfileNotFound)
}
