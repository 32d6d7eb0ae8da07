package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhunt/legisync/internal/model"
	"github.com/jhunt/legisync/internal/store"
)

// BillHandler returns one persisted bill by type and number.
func BillHandler(bills *store.BillStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		billType := strings.ToUpper(c.Params("type"))
		if !model.ValidBillType(billType) {
			return fail(c, fiber.StatusBadRequest, errors.New("unrecognized bill type"))
		}
		number, err := strconv.Atoi(c.Params("number"))
		if err != nil || number <= 0 {
			return fail(c, fiber.StatusBadRequest, errors.New("invalid bill number"))
		}

		bill, err := bills.GetByBillID(context.Background(), model.BillID(billType, number))
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err)
		}
		if bill == nil {
			return fail(c, fiber.StatusNotFound, errors.New("bill not found"))
		}
		return c.JSON(bill)
	}
}

// StatsHandler reports aggregate corpus statistics.
func StatsHandler(stats *store.StatsStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := stats.Collect(context.Background())
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err)
		}
		return c.JSON(result)
	}
}
