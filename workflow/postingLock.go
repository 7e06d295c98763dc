package workflow

import (
	"fmt"

	"github.com/mmdatafocus/mfg_backend/utils"
	"gorm.io/gorm"
)

// AcquireOrderPostingLock serializes completion/cancellation of one production
// order across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the posting transaction. The SQLite test store is
// single-writer and skips it.
func AcquireOrderPostingLock(tx *gorm.DB, orderId int) error {
	if tx.Dialector.Name() != "mysql" {
		return nil
	}
	lockName := fmt.Sprintf("po:%d", orderId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return utils.NewError(utils.KindBusy, "could not acquire posting lock for order %d", orderId)
	}
	return nil
}

func ReleaseOrderPostingLock(tx *gorm.DB, orderId int) {
	if tx.Dialector.Name() != "mysql" {
		return
	}
	lockName := fmt.Sprintf("po:%d", orderId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
