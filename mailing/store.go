package mailing

import (
	"github.com/valentin-kaiser/go-core/apperror"
	"gorm.io/gorm"
)

// Store provides access to mailings and recipients through an explicit
// database handle. Callers construct it with the handle they own and close
// it when they are done; there is no package-level connection state.
type Store struct {
	db *gorm.DB
}

// NewStore wraps the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema for all domain records.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Mailing{}, &Recipient{}, &Report{}); err != nil {
		return apperror.NewError("could not migrate mailing schema").AddError(err)
	}
	return nil
}

// Mailing loads one mailing by id.
func (s *Store) Mailing(id uint) (*Mailing, error) {
	var m Mailing
	if err := s.db.First(&m, id).Error; err != nil {
		return nil, apperror.NewErrorf("could not load mailing %d", id).AddError(err)
	}
	return &m, nil
}

// Recipients loads all recipients of a mailing.
func (s *Store) Recipients(mailingID uint) ([]Recipient, error) {
	var recipients []Recipient
	if err := s.db.Where("mailing_id = ?", mailingID).Find(&recipients).Error; err != nil {
		return nil, apperror.NewErrorf("could not load recipients of mailing %d", mailingID).AddError(err)
	}
	return recipients, nil
}

// SaveMailing inserts or updates a mailing.
func (s *Store) SaveMailing(m *Mailing) error {
	if err := s.db.Save(m).Error; err != nil {
		return apperror.NewError("could not save mailing").AddError(err)
	}
	return nil
}

// SaveRecipient inserts or updates a recipient.
func (s *Store) SaveRecipient(r *Recipient) error {
	if err := s.db.Save(r).Error; err != nil {
		return apperror.NewError("could not save recipient").AddError(err)
	}
	return nil
}

// SaveReport stores one raw report message.
func (s *Store) SaveReport(r *Report) error {
	if err := s.db.Save(r).Error; err != nil {
		return apperror.NewError("could not save report").AddError(err)
	}
	return nil
}

// Close releases the underlying connection pool. The store must not be
// used afterwards.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperror.Wrap(err)
	}
	if err := sqlDB.Close(); err != nil {
		return apperror.NewError("could not close database connection").AddError(err)
	}
	return nil
}
