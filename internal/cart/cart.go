// Package cart реализует корзину покупателя: упорядоченный набор позиций,
// уникальных по товару, с advisory-валидацией остатков. Корзина — value
// object: она восстанавливается из сериализованной формы на каждый запрос
// и не рассчитана на конкурентную мутацию из нескольких горутин.
package cart

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

// Line — одна позиция корзины. Хранит только идентификатор и количество;
// снапшот товара живёт отдельно в read-through кэше корзины.
type Line struct {
	ProductID int64
	Quantity  int
}

// Cart — агрегат корзины. Проверки остатков здесь advisory: они читают
// каталог без блокировок и могут устареть к моменту checkout, поэтому
// процессор заказа перепроверяет всё под блокировкой.
type Cart struct {
	catalog  domain.ProductRepository
	lines    []Line
	products map[int64]domain.Product
}

// New создаёт пустую корзину поверх каталога.
func New(catalog domain.ProductRepository) *Cart {
	return &Cart{
		catalog:  catalog,
		products: make(map[int64]domain.Product),
	}
}

// FromEntries восстанавливает корзину из сериализованной формы.
// Записи с нулевым товаром или неположительным количеством отбрасываются;
// дубликаты одного товара складываются в одну позицию.
func FromEntries(catalog domain.ProductRepository, entries []domain.CartEntry) *Cart {
	c := New(catalog)
	index := make(map[int64]int)
	for _, entry := range entries {
		if entry.ProductID <= 0 || entry.Quantity <= 0 {
			continue
		}
		if at, ok := index[entry.ProductID]; ok {
			c.lines[at].Quantity += entry.Quantity
			continue
		}
		index[entry.ProductID] = len(c.lines)
		c.lines = append(c.lines, Line{ProductID: entry.ProductID, Quantity: entry.Quantity})
	}
	return c
}

// Lines возвращает копию позиций в порядке добавления.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Empty сообщает, пуста ли корзина.
func (c *Cart) Empty() bool { return len(c.lines) == 0 }

// TotalItems возвращает суммарное количество единиц во всех позициях.
func (c *Cart) TotalItems() int {
	total := 0
	for _, line := range c.lines {
		total += line.Quantity
	}
	return total
}

// Product возвращает снапшот товара из кэша, заполненного PreloadProducts
// или последней мутацией.
func (c *Cart) Product(id int64) (domain.Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// AddItem добавляет quantity единиц товара к корзине. Неположительное
// количество — no-op. Если позиция уже есть, количество суммируется.
// Запрошенное итоговое количество проверяется против свежего остатка;
// при нехватке корзина остаётся неизменной и возвращается OutOfStockError.
func (c *Cart) AddItem(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return nil
	}

	product, err := c.catalog.Find(ctx, productID)
	if err != nil {
		return err
	}

	desired := quantity
	at := c.lineIndex(product.ID)
	if at >= 0 {
		desired += c.lines[at].Quantity
	}

	if err := ensureStock(product, desired); err != nil {
		return err
	}

	if at >= 0 {
		c.lines[at].Quantity = desired
	} else {
		c.lines = append(c.lines, Line{ProductID: product.ID, Quantity: quantity})
	}
	c.products[product.ID] = product
	return nil
}

// UpdateItem заменяет количество в существующей позиции. Нулевое или
// отрицательное количество удаляет позицию — это единственный путь с
// «нулевой» семантикой, и он означает удаление, а не позицию с нулём.
// Для отсутствующей позиции — no-op.
func (c *Cart) UpdateItem(ctx context.Context, productID int64, quantity int) error {
	at := c.lineIndex(productID)
	if at < 0 {
		return nil
	}

	if quantity <= 0 {
		c.removeAt(at)
		return nil
	}

	product, err := c.catalog.Find(ctx, productID)
	if err != nil {
		return err
	}
	if err := ensureStock(product, quantity); err != nil {
		return err
	}

	c.lines[at].Quantity = quantity
	c.products[product.ID] = product
	return nil
}

// RemoveItem удаляет позицию, если она есть; иначе no-op.
func (c *Cart) RemoveItem(productID int64) {
	if at := c.lineIndex(productID); at >= 0 {
		c.removeAt(at)
	}
}

// Clear опустошает корзину.
func (c *Cart) Clear() {
	c.lines = nil
	c.products = make(map[int64]domain.Product)
}

// Merge добавляет позиции другой корзины к текущей через AddItem, то есть
// аддитивно и с повторной валидацией остатков. Атомарности нет: позиции,
// обработанные до первой ошибки, остаются применёнными — так гостевая
// корзина вливается в корзину пользователя, а ошибку показывает вызывающий.
func (c *Cart) Merge(ctx context.Context, other *Cart) error {
	if other == nil {
		return nil
	}
	for _, line := range other.lines {
		if err := c.AddItem(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// PreloadProducts батчем перечитывает снапшоты всех товаров корзины и
// молча выбрасывает позиции, чьи товары исчезли из каталога.
func (c *Cart) PreloadProducts(ctx context.Context) error {
	ids := c.distinctProductIDs()
	if len(ids) == 0 {
		c.products = make(map[int64]domain.Product)
		return nil
	}

	products, err := c.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}

	kept := c.lines[:0]
	for _, line := range c.lines {
		if _, ok := products[line.ProductID]; ok {
			kept = append(kept, line)
		}
	}
	c.lines = kept
	c.products = products
	return nil
}

// Subtotal суммирует unit_price * quantity по позициям с загруженным
// снапшотом; позиции без снапшота дают ноль — сначала PreloadProducts.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		product, ok := c.products[line.ProductID]
		if !ok {
			continue
		}
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// Serialize возвращает корзину в персистентной форме: только пары
// {product_id, quantity}, снапшоты товаров не сериализуются.
func (c *Cart) Serialize() []domain.CartEntry {
	entries := make([]domain.CartEntry, 0, len(c.lines))
	for _, line := range c.lines {
		entries = append(entries, domain.CartEntry{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return entries
}

func (c *Cart) lineIndex(productID int64) int {
	for i, line := range c.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(at int) {
	productID := c.lines[at].ProductID
	c.lines = append(c.lines[:at], c.lines[at+1:]...)
	delete(c.products, productID)
}

func (c *Cart) distinctProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(c.lines))
	ids := make([]int64, 0, len(c.lines))
	for _, line := range c.lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func ensureStock(product domain.Product, desired int) error {
	if product.Stock <= 0 {
		return &domain.OutOfStockError{ProductName: product.Name}
	}
	if desired > product.Stock {
		return &domain.OutOfStockError{ProductName: product.Name, Available: product.Stock}
	}
	return nil
}
