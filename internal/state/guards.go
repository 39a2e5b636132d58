package state

import (
	"github.com/langchou/fleetcare/internal/apperr"
	"github.com/langchou/fleetcare/internal/models"
)

// mandatoryOnCheckout 这些步骤 checkout 时必须填写全部必填字段
var mandatoryOnCheckout = map[models.TicketStatus]bool{
	models.TicketScreening: true,
	models.TicketRepair:    true,
	models.TicketRelease:   true,
}

// RequiresMandatoryFields 步骤 checkout 是否校验必填字段
func RequiresMandatoryFields(step models.TicketStatus) bool {
	return mandatoryOnCheckout[step]
}

// ValidateCheckIn 进入步骤时必须提供 check-in
func ValidateCheckIn(times models.StepTimes) error {
	var missing []string
	if times.CheckInDate == nil {
		missing = append(missing, "checkInDate")
	}
	if times.CheckInHour == nil {
		missing = append(missing, "checkInHour")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing)
	}
	return nil
}

// ValidateInspectionEntry 进入质检前维修必须已 checkout，且质检 check-in 不早于维修 checkout
func ValidateInspectionEntry(repair *models.RepairStep, inspection *models.InspectionStep) error {
	if repair == nil || !repair.CheckedOut() {
		return apperr.New(apperr.CodeTicketInvalidStateToChange, "repair must be checked out before inspection")
	}
	if inspection == nil {
		return nil
	}

	checkIn, ok := inspection.CheckIn()
	if !ok {
		return nil
	}
	repairOut, ok := repair.CheckOut()
	if !ok {
		return apperr.New(apperr.CodeTicketInvalidStateToChange, "repair checkout is not a valid date and hour")
	}
	if checkIn.Before(repairOut) {
		return apperr.New(apperr.CodeTicketInvalidStateToChange,
			"inspection check-in %s is earlier than repair checkout %s",
			checkIn.Format("2006-01-02 15:04"), repairOut.Format("2006-01-02 15:04"))
	}
	return nil
}

// ValidateCheckout 校验步骤 checkout
// missing 为步骤记录自身缺失的必填字段，与缺失的 checkout 字段合并为一个错误
func ValidateCheckout(step models.TicketStatus, times models.StepTimes, missing []string) error {
	var all []string
	if RequiresMandatoryFields(step) {
		all = append(all, missing...)
	}
	if times.CheckOutDate == nil {
		all = append(all, "checkOutDate")
	}
	if times.CheckOutHour == nil {
		all = append(all, "checkOutHour")
	}
	if len(all) > 0 {
		return apperr.MissingFields(all)
	}

	checkOut, ok := times.CheckOut()
	if !ok {
		return apperr.New(apperr.CodeInvalidArgument, "checkout hour must be HH:MM")
	}
	if checkIn, ok := times.CheckIn(); ok && checkOut.Before(checkIn) {
		return apperr.New(apperr.CodeTicketInvalidStateToChange,
			"%s checkout %s is earlier than check-in %s",
			step, checkOut.Format("2006-01-02 15:04"), checkIn.Format("2006-01-02 15:04"))
	}
	return nil
}
