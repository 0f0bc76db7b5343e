package usecase

import (
	"context"
	"strings"
	"time"

	"orderflow/internal/domain/model"
	repo "orderflow/internal/repository"
)

// インメモリのデータストア。全repoがこの1つを共有する。
type memStore struct {
	users       map[int64]model.User
	products    map[int64]model.Product
	carts       map[int64]model.Cart
	cartItems   map[int64]model.CartItem
	orders      map[string]model.Order
	orderItems  map[string][]model.OrderItem
	instances   map[string]model.WorkflowInstance // business key
	tasks       map[string]model.WorkflowTask     // task ID
	adjustments []model.InventoryAdjustment
	audits      []model.AuditLog
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[int64]model.User{},
		products:   map[int64]model.Product{},
		carts:      map[int64]model.Cart{},
		cartItems:  map[int64]model.CartItem{},
		orders:     map[string]model.Order{},
		orderItems: map[string][]model.OrderItem{},
		instances:  map[string]model.WorkflowInstance{},
		tasks:      map[string]model.WorkflowTask{},
		nextID:     1,
	}
}

func (s *memStore) id() int64 {
	v := s.nextID
	s.nextID++
	return v
}

// ロールバック用スナップショット（値型だけなのでmapコピーで足りる）
func (s *memStore) snapshot() *memStore {
	c := newMemStore()
	c.nextID = s.nextID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		items := make([]model.OrderItem, len(v))
		copy(items, v)
		c.orderItems[k] = items
	}
	for k, v := range s.instances {
		c.instances[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	c.adjustments = append([]model.InventoryAdjustment{}, s.adjustments...)
	c.audits = append([]model.AuditLog{}, s.audits...)
	return c
}

func (s *memStore) restore(from *memStore) {
	*s = *from
}

// --- TransactionManager ---

// fnがerrorを返したらストアをスナップショットに巻き戻す。
type memTxManager struct {
	store *memStore
}

func (m *memTxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	snap := m.store.snapshot()
	if err := fn(&memTxRepos{s: m.store}); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

type memTxRepos struct {
	s *memStore
}

func (r *memTxRepos) Orders() repo.OrderRepository         { return &memOrders{r.s} }
func (r *memTxRepos) OrderItems() repo.OrderItemRepository { return &memOrderItems{r.s} }
func (r *memTxRepos) Carts() repo.CartRepository           { return &memCarts{r.s} }
func (r *memTxRepos) CartItems() repo.CartItemRepository   { return &memCartItems{r.s} }
func (r *memTxRepos) Inventory() repo.InventoryRepository  { return &memInventory{r.s} }
func (r *memTxRepos) Products() repo.ProductRepository     { return &memProducts{r.s} }
func (r *memTxRepos) Users() repo.UserRepository           { return &memUsers{r.s} }
func (r *memTxRepos) Workflow() repo.WorkflowRepository    { return &memWorkflow{r.s} }
func (r *memTxRepos) AuditLogs() repo.AuditLogRepository   { return &memAudits{r.s} }

// --- Orders ---

type memOrders struct{ s *memStore }

func (m *memOrders) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	o, ok := m.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range m.s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memOrders) Create(ctx context.Context, order model.Order) error {
	m.s.orders[order.ID] = order
	return nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	o, ok := m.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.Status = status
	m.s.orders[orderID] = o
	return nil
}

func (m *memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range m.s.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

// --- OrderItems ---

type memOrderItems struct{ s *memStore }

func (m *memOrderItems) CreateBulk(ctx context.Context, orderID string, items []model.OrderItem) error {
	stored := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		it.ID = m.s.id()
		it.OrderID = orderID
		stored = append(stored, it)
	}
	m.s.orderItems[orderID] = stored
	return nil
}

func (m *memOrderItems) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	return m.s.orderItems[orderID], nil
}

// --- Carts ---

type memCarts struct{ s *memStore }

func (m *memCarts) GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	if c, err := m.FindActiveByUserID(ctx, userID); err == nil {
		return c, nil
	}
	c := model.Cart{ID: m.s.id(), UserID: userID, Status: model.CartStatusActive}
	m.s.carts[c.ID] = c
	return c, nil
}

func (m *memCarts) FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	for _, c := range m.s.carts {
		if c.UserID == userID && c.Status == model.CartStatusActive {
			return c, nil
		}
	}
	return model.Cart{}, repo.ErrNotFound
}

func (m *memCarts) UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error {
	c, ok := m.s.carts[cartID]
	if !ok {
		return repo.ErrNotFound
	}
	c.Status = status
	m.s.carts[cartID] = c
	return nil
}

func (m *memCarts) Clear(ctx context.Context, cartID int64) error {
	for id, it := range m.s.cartItems {
		if it.CartID == cartID {
			delete(m.s.cartItems, id)
		}
	}
	return nil
}

// --- CartItems ---

type memCartItems struct{ s *memStore }

func (m *memCartItems) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var out []model.CartItem
	for _, it := range m.s.cartItems {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memCartItems) UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64, unitPriceSnapshot int64) error {
	for id, it := range m.s.cartItems {
		if it.CartID == cartID && it.ProductID == productID {
			it.Quantity += addQty
			it.UnitPriceSnapshot = unitPriceSnapshot
			m.s.cartItems[id] = it
			return nil
		}
	}
	it := model.CartItem{
		ID:                m.s.id(),
		CartID:            cartID,
		ProductID:         productID,
		Quantity:          addQty,
		UnitPriceSnapshot: unitPriceSnapshot,
	}
	m.s.cartItems[it.ID] = it
	return nil
}

func (m *memCartItems) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	it, ok := m.s.cartItems[cartItemID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Quantity = qty
	m.s.cartItems[cartItemID] = it
	return nil
}

func (m *memCartItems) DeleteByID(ctx context.Context, cartItemID int64) error {
	if _, ok := m.s.cartItems[cartItemID]; !ok {
		return repo.ErrNotFound
	}
	delete(m.s.cartItems, cartItemID)
	return nil
}

func (m *memCartItems) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	it, ok := m.s.cartItems[cartItemID]
	if !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (m *memCartItems) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	it, ok := m.s.cartItems[cartItemID]
	if !ok {
		return false, nil
	}
	cart, ok := m.s.carts[it.CartID]
	return ok && cart.UserID == userID, nil
}

// --- Inventory ---

type memInventory struct{ s *memStore }

func (m *memInventory) ReserveStock(ctx context.Context, productID int64, qty int64) (int64, error) {
	p, ok := m.s.products[productID]
	if !ok {
		return 0, repo.ErrNotFound
	}
	if p.Stock < qty {
		return 0, repo.ErrInsufficientStock
	}
	p.Stock -= qty
	m.s.products[productID] = p
	return p.Stock, nil
}

func (m *memInventory) ReleaseStock(ctx context.Context, productID int64, qty int64) error {
	p, ok := m.s.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock += qty
	m.s.products[productID] = p
	return nil
}

func (m *memInventory) SetStock(ctx context.Context, productID int64, newStock int64) error {
	p, ok := m.s.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock = newStock
	m.s.products[productID] = p
	return nil
}

func (m *memInventory) CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error {
	adjustment.ID = m.s.id()
	m.s.adjustments = append(m.s.adjustments, adjustment)
	return nil
}

// --- Products ---

type memProducts struct{ s *memStore }

func (m *memProducts) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var out []model.Product
	for _, p := range m.s.products {
		if !p.IsActive {
			continue
		}
		if q.Q != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Q)) {
			continue
		}
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (m *memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := m.s.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (m *memProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = m.s.id()
	m.s.products[p.ID] = p
	return p, nil
}

func (m *memProducts) Update(ctx context.Context, p model.Product) error {
	if _, ok := m.s.products[p.ID]; !ok {
		return repo.ErrNotFound
	}
	m.s.products[p.ID] = p
	return nil
}

// --- Users ---

type memUsers struct{ s *memStore }

func (m *memUsers) Create(ctx context.Context, user model.User) (model.User, error) {
	user.ID = m.s.id()
	m.s.users[user.ID] = user
	return user, nil
}

func (m *memUsers) FindByID(ctx context.Context, userID int64) (model.User, error) {
	u, ok := m.s.users[userID]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (model.User, error) {
	for _, u := range m.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

// --- Workflow ---

type memWorkflow struct{ s *memStore }

func (m *memWorkflow) CreateInstance(ctx context.Context, inst model.WorkflowInstance) error {
	m.s.instances[inst.BusinessKey] = inst
	return nil
}

func (m *memWorkflow) FindInstanceByBusinessKey(ctx context.Context, businessKey string) (model.WorkflowInstance, error) {
	inst, ok := m.s.instances[businessKey]
	if !ok {
		return model.WorkflowInstance{}, repo.ErrNotFound
	}
	return inst, nil
}

func (m *memWorkflow) UpdateInstance(ctx context.Context, inst model.WorkflowInstance) error {
	if _, ok := m.s.instances[inst.BusinessKey]; !ok {
		return repo.ErrNotFound
	}
	m.s.instances[inst.BusinessKey] = inst
	return nil
}

func (m *memWorkflow) CreateTask(ctx context.Context, task model.WorkflowTask) error {
	m.s.tasks[task.ID] = task
	return nil
}

func (m *memWorkflow) FindPendingTask(ctx context.Context, businessKey string, taskKey string) (model.WorkflowTask, error) {
	for _, t := range m.s.tasks {
		if t.BusinessKey == businessKey && t.TaskKey == taskKey && t.Status == model.WorkflowTaskPending {
			return t, nil
		}
	}
	return model.WorkflowTask{}, repo.ErrNotFound
}

func (m *memWorkflow) FindTaskByID(ctx context.Context, taskID string) (model.WorkflowTask, error) {
	t, ok := m.s.tasks[taskID]
	if !ok {
		return model.WorkflowTask{}, repo.ErrNotFound
	}
	return t, nil
}

func (m *memWorkflow) CompleteTask(ctx context.Context, taskID string, completedAt time.Time) error {
	t, ok := m.s.tasks[taskID]
	if !ok || t.Status != model.WorkflowTaskPending {
		return repo.ErrNotFound
	}
	t.Status = model.WorkflowTaskCompleted
	t.CompletedAt = &completedAt
	m.s.tasks[taskID] = t
	return nil
}

// --- AuditLogs ---

type memAudits struct{ s *memStore }

func (m *memAudits) Create(ctx context.Context, log model.AuditLog) error {
	log.ID = m.s.id()
	m.s.audits = append(m.s.audits, log)
	return nil
}

func (m *memAudits) ListByResource(ctx context.Context, resourceType string, resourceID string) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for _, a := range m.s.audits {
		if a.ResourceType == resourceType && a.ResourceID == resourceID {
			out = append(out, a)
		}
	}
	return out, nil
}
